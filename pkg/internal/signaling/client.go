package signaling

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	jsoniter "github.com/json-iterator/go"

	"github.com/heartlink-app/heartlink-core/pkg/internal/models"
)

var validate = validator.New()

// Client issues the signaling REST calls. Every call is best-effort with
// respect to the local state machine: callers decide what a failure means.
type Client struct {
	baseURL string
}

func NewClient(baseURL string) *Client {
	return &Client{baseURL: strings.TrimRight(baseURL, "/")}
}

type StartCallRequest struct {
	FromUserID string          `json:"fromUserId"`
	ToUserID   string          `json:"toUserId"`
	From       models.UserInfo `json:"from"`
	To         models.UserInfo `json:"to"`
}

type StartCallResponse struct {
	Room     string           `json:"room" validate:"required"`
	JoinInfo *models.JoinInfo `json:"JoinInfo,omitempty"`
}

type AcceptCallRequest struct {
	Room        string `json:"room"`
	UserID      string `json:"userId"`
	OtherUserID string `json:"otherUserId"`
}

type AcceptCallResponse struct {
	JoinInfo *models.JoinInfo `json:"JoinInfo,omitempty"`
}

type DeclineCallRequest struct {
	Room        string          `json:"room"`
	UserID      string          `json:"userId"`
	OtherUserID string          `json:"otherUserId"`
	By          models.UserInfo `json:"by"`
}

type EndCallRequest struct {
	Room        string `json:"room"`
	UserID      string `json:"userId"`
	OtherUserID string `json:"otherUserId"`
}

func (c *Client) StartCall(from, to models.UserInfo) (StartCallResponse, error) {
	var out StartCallResponse
	err := c.post("/calls/start", StartCallRequest{
		FromUserID: from.ID,
		ToUserID:   to.ID,
		From:       from,
		To:         to,
	}, &out)
	if err != nil {
		return out, err
	}
	if err := validate.Struct(out); err != nil {
		return out, fmt.Errorf("malformed start response: %v", err)
	}
	return out, nil
}

func (c *Client) AcceptCall(room, userID, otherUserID string) (AcceptCallResponse, error) {
	var out AcceptCallResponse
	err := c.post("/calls/accept", AcceptCallRequest{
		Room:        room,
		UserID:      userID,
		OtherUserID: otherUserID,
	}, &out)
	return out, err
}

func (c *Client) DeclineCall(room, userID, otherUserID string, by models.UserInfo) error {
	return c.post("/calls/decline", DeclineCallRequest{
		Room:        room,
		UserID:      userID,
		OtherUserID: otherUserID,
		By:          by,
	}, nil)
}

func (c *Client) EndCall(room, userID, otherUserID string) error {
	return c.post("/calls/end", EndCallRequest{
		Room:        room,
		UserID:      userID,
		OtherUserID: otherUserID,
	}, nil)
}

func (c *Client) post(path string, body any, out any) error {
	agent := fiber.Post(c.baseURL + path)
	agent.JSONEncoder(jsoniter.Marshal)
	agent.JSON(body)

	status, raw, errs := agent.Bytes()
	if len(errs) > 0 {
		return fmt.Errorf("signaling request to %s failed: %v", path, errs[0])
	}
	if status < 200 || status >= 300 {
		return fmt.Errorf("signaling request to %s got status %d", path, status)
	}
	if out != nil {
		if err := jsoniter.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("unable to decode signaling response: %v", err)
		}
	}
	return nil
}
