// Open-lines chat closure workflow.
//
// Two sequential REST calls, the second conditional on the first:
//
//  1. imopenlines.crm.chat.getLastId resolves the most recent open-lines
//     chat attached to a CRM deal.
//  2. imopenlines.operator.finish closes that chat.
//
// "No chat exists for this deal" is a normal terminal outcome, not an error:
// the portal signals it either with a not-found API error or with an absent
// or non-positive chat id.
package bitrix

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

const (
	methodGetLastChatID = "imopenlines.crm.chat.getLastId"
	methodFinishChat    = "imopenlines.operator.finish"

	crmEntityTypeDeal = "DEAL"
)

// ChatOutcome reports the result of a closure attempt. NotFound (Found=false)
// is a valid terminal state requiring no further action.
type ChatOutcome struct {
	Found    bool  `json:"found"`
	Finished bool  `json:"finished"`
	ChatID   int64 `json:"chat_id,omitempty"`
}

// Caller is the remote-call capability CloseDealChat depends on. *Client
// satisfies it; tests substitute fakes.
type Caller interface {
	Call(ctx context.Context, baseURL, method string, params url.Values) (json.RawMessage, error)
}

// GetLastDealChatID resolves the id of the latest open-lines chat linked to
// the given deal. It returns (0, nil) when the portal reports no chat, either
// via a not-found error or a non-positive id.
func GetLastDealChatID(ctx context.Context, c Caller, baseURL, dealID string) (int64, error) {
	params := url.Values{}
	params.Set("CRM_ENTITY_TYPE", crmEntityTypeDeal)
	params.Set("CRM_ENTITY", dealID)

	raw, err := c.Call(ctx, baseURL, methodGetLastChatID, params)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.IsNotFound() {
			return 0, nil
		}
		return 0, err
	}

	id, err := parseChatID(raw)
	if err != nil {
		return 0, fmt.Errorf("bitrix: %s: %w", methodGetLastChatID, err)
	}
	if id <= 0 {
		return 0, nil
	}
	return id, nil
}

// FinishChat closes the open-lines chat with the given id. Any failure
// propagates; there is no benign variant of this call.
func FinishChat(ctx context.Context, c Caller, baseURL string, chatID int64) error {
	params := url.Values{}
	params.Set("CHAT_ID", strconv.FormatInt(chatID, 10))

	_, err := c.Call(ctx, baseURL, methodFinishChat, params)
	return err
}

// CloseDealChat runs the resolve-then-finish workflow against one tenant
// webhook. The finish call is issued only when resolution yields a positive
// chat id, and exactly once.
func CloseDealChat(ctx context.Context, c Caller, baseURL, dealID string) (ChatOutcome, error) {
	id, err := GetLastDealChatID(ctx, c, baseURL, dealID)
	if err != nil {
		return ChatOutcome{}, err
	}
	if id == 0 {
		return ChatOutcome{Found: false}, nil
	}

	if err := FinishChat(ctx, c, baseURL, id); err != nil {
		return ChatOutcome{Found: true, ChatID: id}, err
	}
	return ChatOutcome{Found: true, Finished: true, ChatID: id}, nil
}

// parseChatID extracts a chat id from the "result" payload. The portal
// returns it either as a bare number or as a quoted numeric string.
func parseChatID(raw json.RawMessage) (int64, error) {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" || s == "false" {
		return 0, nil
	}
	s = strings.Trim(s, `"`)
	if s == "" {
		return 0, nil
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("unexpected chat id %q", raw)
	}
	return id, nil
}
