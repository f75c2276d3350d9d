package mail

import (
	"fmt"
	"strings"

	"github.com/sprinteroz/overstory/internal/oops"
	"github.com/sprinteroz/overstory/pkg/overstory"
)

// ActiveLister supplies the active agent set for group expansion. The
// session store satisfies it via an adapter in the command layer.
type ActiveLister interface {
	ActiveRecipients() ([]Recipient, error)
}

// Client is the mail API used by commands and hook helpers.
type Client struct {
	store    *Store
	active   ActiveLister
	nudgeDir string
}

// NewClient creates a mail client. active may be nil when group addressing
// is not needed (e.g. direct hook check); nudgeDir may be empty to disable
// nudge markers.
func NewClient(store *Store, active ActiveLister, nudgeDir string) *Client {
	return &Client{store: store, active: active, nudgeDir: nudgeDir}
}

// SendResult reports what a send produced.
type SendResult struct {
	IDs            []string
	RecipientCount int
}

// Send delivers a message. A group address fans out into one row per
// resolved recipient (sender excluded); a group resolving to nobody sends
// zero messages. High-priority or semantically urgent messages leave a
// pending-nudge marker per recipient.
func (c *Client) Send(m *Message) (*SendResult, error) {
	if m.Priority == "" {
		m.Priority = overstory.PriorityNormal
	}
	if m.Type == "" {
		m.Type = overstory.MailStatus
	}

	recipients := []string{m.To}
	if IsGroupAddress(m.To) {
		if c.active == nil {
			return nil, oops.New(oops.CodeGroup, "group address %q requires the session store", m.To)
		}
		active, err := c.active.ActiveRecipients()
		if err != nil {
			return nil, oops.Wrap(oops.CodeGroup, err, "resolve group %q", m.To)
		}
		resolved, ok := ResolveGroup(m.To, m.From, active)
		if !ok {
			return nil, oops.New(oops.CodeGroup, "unknown group address %q", m.To)
		}
		recipients = resolved
	}

	result := &SendResult{}
	for _, to := range recipients {
		row := *m
		row.ID = ""
		row.To = to
		id, err := c.store.insert(&row)
		if err != nil {
			return nil, err
		}
		result.IDs = append(result.IDs, id)

		if c.nudgeDir != "" && shouldNudge(&row) {
			err := WriteNudge(c.nudgeDir, to, Nudge{
				From:      row.From,
				Subject:   row.Subject,
				Type:      row.Type,
				Priority:  row.Priority,
				CreatedAt: row.CreatedAt,
			})
			if err != nil {
				return nil, oops.Wrap(oops.CodeMail, err, "write nudge for %s", to)
			}
		}
	}
	result.RecipientCount = len(result.IDs)
	return result, nil
}

// Check returns the unread messages addressed to agent and marks them read
// atomically.
func (c *Client) Check(agent string) ([]*Message, error) {
	msgs, err := c.store.Unread(agent)
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return nil, nil
	}

	ids := make([]string, len(msgs))
	for i, m := range msgs {
		ids[i] = m.ID
	}
	if err := c.store.markAllRead(ids); err != nil {
		return nil, err
	}
	return msgs, nil
}

// CheckInject renders the agent's unread messages as a textual block
// suitable for prepending to an LLM prompt. A pending-nudge marker, if any,
// is consumed and rendered as a priority banner above the inbox.
func (c *Client) CheckInject(agent string) (string, error) {
	var b strings.Builder

	if c.nudgeDir != "" {
		nudge, err := TakeNudge(c.nudgeDir, agent)
		if err != nil {
			return "", err
		}
		if nudge != nil {
			fmt.Fprintf(&b, "=== PRIORITY: %s message from %s: %s ===\n\n",
				strings.ToUpper(string(nudge.Priority)), nudge.From, nudge.Subject)
		}
	}

	msgs, err := c.Check(agent)
	if err != nil {
		return "", err
	}
	if len(msgs) == 0 && b.Len() == 0 {
		return "", nil
	}

	fmt.Fprintf(&b, "You have %d new message(s):\n", len(msgs))
	for i, m := range msgs {
		fmt.Fprintf(&b, "\n--- Message %d ---\n", i+1)
		fmt.Fprintf(&b, "From: %s\nSubject: %s\nType: %s\nPriority: %s\n",
			m.From, m.Subject, m.Type, m.Priority)
		fmt.Fprintf(&b, "\n%s\n", m.Body)
		if m.Payload != "" {
			fmt.Fprintf(&b, "\nPayload: %s\n", m.Payload)
		}
	}
	return b.String(), nil
}

// List returns messages matching the filter.
func (c *Client) List(f ListFilter) ([]*Message, error) {
	return c.store.List(f)
}

// MarkRead marks one message read; see Store.MarkRead for idempotence.
func (c *Client) MarkRead(id string) (alreadyRead bool, err error) {
	return c.store.MarkRead(id)
}

// Reply sends a reply to the message with the given id. The recipient is
// the original sender, unless the replier is that sender (replying to their
// own message), in which case the original recipient. The subject gains a
// "Re: " prefix unless it already has one.
func (c *Client) Reply(id, body, from string) (*SendResult, error) {
	orig, err := c.store.Get(id)
	if err != nil {
		return nil, err
	}
	if orig == nil {
		return nil, oops.New(oops.CodeMail, "no message %q", id)
	}

	to := orig.From
	if from == orig.From {
		to = orig.To
	}

	subject := orig.Subject
	if !strings.HasPrefix(subject, "Re: ") {
		subject = "Re: " + subject
	}

	threadID := orig.ThreadID
	if threadID == "" {
		threadID = orig.ID
	}

	return c.Send(&Message{
		From:     from,
		To:       to,
		Subject:  subject,
		Body:     body,
		Type:     orig.Type,
		Priority: orig.Priority,
		ThreadID: threadID,
	})
}

// Purge bulk-deletes messages per the filter.
func (c *Client) Purge(f PurgeFilter) (int64, error) {
	return c.store.Purge(f)
}
