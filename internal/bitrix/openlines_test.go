package bitrix

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"testing"
)

// fakeCaller scripts responses per method and records invocations.
type fakeCaller struct {
	calls   []recordedCall
	results map[string]json.RawMessage
	errs    map[string]error
}

type recordedCall struct {
	baseURL string
	method  string
	params  url.Values
}

func (f *fakeCaller) Call(ctx context.Context, baseURL, method string, params url.Values) (json.RawMessage, error) {
	f.calls = append(f.calls, recordedCall{baseURL, method, params})
	if err, ok := f.errs[method]; ok {
		return nil, err
	}
	return f.results[method], nil
}

func (f *fakeCaller) count(method string) int {
	n := 0
	for _, c := range f.calls {
		if c.method == method {
			n++
		}
	}
	return n
}

const testBase = "https://acme.bitrix24.de/rest/1/secret"

func TestCloseDealChat_FoundAndFinished(t *testing.T) {
	f := &fakeCaller{
		results: map[string]json.RawMessage{
			methodGetLastChatID: json.RawMessage(`99`),
			methodFinishChat:    json.RawMessage(`true`),
		},
	}

	out, err := CloseDealChat(context.Background(), f, testBase, "42")
	if err != nil {
		t.Fatalf("CloseDealChat returned error: %v", err)
	}
	if !out.Found || !out.Finished || out.ChatID != 99 {
		t.Fatalf("outcome = %+v; want found+finished chat 99", out)
	}

	if n := f.count(methodFinishChat); n != 1 {
		t.Fatalf("finish called %d times; want exactly 1", n)
	}
	last := f.calls[len(f.calls)-1]
	if last.params.Get("CHAT_ID") != "99" {
		t.Errorf("finish CHAT_ID = %q; want 99", last.params.Get("CHAT_ID"))
	}
	first := f.calls[0]
	if first.params.Get("CRM_ENTITY_TYPE") != "DEAL" || first.params.Get("CRM_ENTITY") != "42" {
		t.Errorf("resolve params = %v", first.params)
	}
}

func TestCloseDealChat_QuotedChatID(t *testing.T) {
	f := &fakeCaller{
		results: map[string]json.RawMessage{
			methodGetLastChatID: json.RawMessage(`"99"`),
			methodFinishChat:    json.RawMessage(`true`),
		},
	}
	out, err := CloseDealChat(context.Background(), f, testBase, "42")
	if err != nil {
		t.Fatalf("CloseDealChat returned error: %v", err)
	}
	if out.ChatID != 99 {
		t.Fatalf("ChatID = %d; want 99", out.ChatID)
	}
}

func TestCloseDealChat_NotFoundErrorIsBenign(t *testing.T) {
	f := &fakeCaller{
		errs: map[string]error{
			methodGetLastChatID: &APIError{
				Method:      methodGetLastChatID,
				Description: "Entity not found",
				Status:      200,
			},
		},
	}

	out, err := CloseDealChat(context.Background(), f, testBase, "42")
	if err != nil {
		t.Fatalf("not-found must not propagate, got %v", err)
	}
	if out.Found || out.Finished {
		t.Fatalf("outcome = %+v; want not found", out)
	}
	if n := f.count(methodFinishChat); n != 0 {
		t.Fatalf("finish must not be called when no chat exists")
	}
}

func TestCloseDealChat_NonPositiveIDIsNoChat(t *testing.T) {
	for _, result := range []string{`0`, `-3`, `null`, `false`, `""`} {
		f := &fakeCaller{
			results: map[string]json.RawMessage{
				methodGetLastChatID: json.RawMessage(result),
			},
		}
		out, err := CloseDealChat(context.Background(), f, testBase, "42")
		if err != nil {
			t.Fatalf("result %s: unexpected error %v", result, err)
		}
		if out.Found {
			t.Errorf("result %s: want not found, got %+v", result, out)
		}
		if f.count(methodFinishChat) != 0 {
			t.Errorf("result %s: finish should not run", result)
		}
	}
}

func TestCloseDealChat_OtherResolveErrorPropagates(t *testing.T) {
	denied := &APIError{Method: methodGetLastChatID, Code: "ACCESS_DENIED", Description: "Access denied"}
	f := &fakeCaller{errs: map[string]error{methodGetLastChatID: denied}}

	_, err := CloseDealChat(context.Background(), f, testBase, "42")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Code != "ACCESS_DENIED" {
		t.Fatalf("want ACCESS_DENIED to propagate, got %v", err)
	}
}

func TestCloseDealChat_FinishErrorPropagates(t *testing.T) {
	finishErr := &APIError{Method: methodFinishChat, Description: "Chat already closed"}
	f := &fakeCaller{
		results: map[string]json.RawMessage{
			methodGetLastChatID: json.RawMessage(`7`),
		},
		errs: map[string]error{methodFinishChat: finishErr},
	}

	out, err := CloseDealChat(context.Background(), f, testBase, "42")
	if !errors.Is(err, finishErr) {
		t.Fatalf("want finish error to propagate, got %v", err)
	}
	if !out.Found || out.Finished || out.ChatID != 7 {
		t.Fatalf("outcome = %+v; want found, not finished", out)
	}
}

func TestCloseDealChat_GarbageChatID(t *testing.T) {
	f := &fakeCaller{
		results: map[string]json.RawMessage{
			methodGetLastChatID: json.RawMessage(`{"nested":"object"}`),
		},
	}
	if _, err := CloseDealChat(context.Background(), f, testBase, "42"); err == nil {
		t.Fatalf("expected error for non-numeric result")
	}
}
