package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sprinteroz/overstory/internal/hooks"
	"github.com/sprinteroz/overstory/internal/mail"
	"github.com/sprinteroz/overstory/internal/oops"
	"github.com/sprinteroz/overstory/pkg/overstory"
)

var mailCmd = &cobra.Command{
	Use:   "mail",
	Short: "Send and read inter-agent mail",
}

var mailSendFlags struct {
	from     string
	to       string
	subject  string
	body     string
	mailType string
	priority string
	payload  string
}

var mailSendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send a message to an agent or group",
	Long: `Send a message. The recipient may be an agent name, 'all', a capability
plural like 'builders', or 'group:<name>'. Group sends fan out one copy per
active member, excluding the sender.`,
	RunE: runMailSend,
}

var mailCheckFlags struct {
	agent      string
	inject     bool
	debounceMs int
}

var mailCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Read and consume an agent's unread mail",
	RunE:  runMailCheck,
}

var mailListFlags struct {
	from   string
	to     string
	unread bool
	limit  int
}

var mailListCmd = &cobra.Command{
	Use:   "list",
	Short: "List messages without marking them read",
	RunE:  runMailList,
}

var mailReadCmd = &cobra.Command{
	Use:   "read <message-id>",
	Short: "Mark one message read",
	Args:  cobra.ExactArgs(1),
	RunE:  runMailRead,
}

var mailReplyFlags struct {
	from string
	body string
}

var mailReplyCmd = &cobra.Command{
	Use:   "reply <message-id>",
	Short: "Reply to a message, threading onto its conversation",
	Args:  cobra.ExactArgs(1),
	RunE:  runMailReply,
}

var mailPurgeFlags struct {
	all       bool
	olderThan time.Duration
	agent     string
}

var mailPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Bulk-delete messages",
	RunE:  runMailPurge,
}

func init() {
	f := mailSendCmd.Flags()
	f.StringVar(&mailSendFlags.from, "from", "orchestrator", "sender agent name")
	f.StringVar(&mailSendFlags.to, "to", "", "recipient agent or group (required)")
	f.StringVar(&mailSendFlags.subject, "subject", "", "subject line (required)")
	f.StringVar(&mailSendFlags.body, "body", "", "message body")
	f.StringVar(&mailSendFlags.mailType, "type", "status", "message type")
	f.StringVar(&mailSendFlags.priority, "priority", "normal", "message priority")
	f.StringVar(&mailSendFlags.payload, "payload", "", "opaque JSON payload")
	_ = mailSendCmd.MarkFlagRequired("to")
	_ = mailSendCmd.MarkFlagRequired("subject")

	c := mailCheckCmd.Flags()
	c.StringVar(&mailCheckFlags.agent, "agent", "", "agent whose inbox to check (required)")
	c.BoolVar(&mailCheckFlags.inject, "inject", false, "render for prompt injection, consuming any pending nudge")
	c.IntVar(&mailCheckFlags.debounceMs, "debounce", 0, "skip if this agent checked within the window (ms)")
	_ = mailCheckCmd.MarkFlagRequired("agent")

	l := mailListCmd.Flags()
	l.StringVar(&mailListFlags.from, "from", "", "filter by sender")
	l.StringVar(&mailListFlags.to, "to", "", "filter by recipient")
	l.BoolVar(&mailListFlags.unread, "unread", false, "unread messages only")
	l.IntVar(&mailListFlags.limit, "limit", 50, "maximum messages to show")

	r := mailReplyCmd.Flags()
	r.StringVar(&mailReplyFlags.from, "from", "", "replying agent (required)")
	r.StringVar(&mailReplyFlags.body, "body", "", "reply body (required)")
	_ = mailReplyCmd.MarkFlagRequired("from")
	_ = mailReplyCmd.MarkFlagRequired("body")

	p := mailPurgeCmd.Flags()
	p.BoolVar(&mailPurgeFlags.all, "all", false, "delete every message")
	p.DurationVar(&mailPurgeFlags.olderThan, "older-than", 0, "delete messages older than this duration")
	p.StringVar(&mailPurgeFlags.agent, "agent", "", "delete messages sent or received by this agent")

	mailCmd.AddCommand(mailSendCmd, mailCheckCmd, mailListCmd, mailReadCmd, mailReplyCmd, mailPurgeCmd)
}

func runMailSend(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	mailStore, sessions, client, err := openMail(cfg)
	if err != nil {
		return err
	}
	defer mailStore.Close()
	defer sessions.Close()

	res, err := client.Send(&mail.Message{
		From:     mailSendFlags.from,
		To:       mailSendFlags.to,
		Subject:  mailSendFlags.subject,
		Body:     mailSendFlags.body,
		Type:     overstory.MailType(mailSendFlags.mailType),
		Priority: overstory.Priority(mailSendFlags.priority),
		Payload:  mailSendFlags.payload,
	})
	if err != nil {
		return err
	}
	fmt.Printf("Sent to %d recipient(s)\n", res.RecipientCount)
	return nil
}

func runMailCheck(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if mailCheckFlags.debounceMs > 0 {
		skip, err := hooks.ShouldSkipCheck(cfg.MailCheckStatePath(),
			mailCheckFlags.agent, mailCheckFlags.debounceMs, time.Now())
		if err != nil {
			return err
		}
		if skip {
			return nil
		}
	}

	mailStore, sessions, client, err := openMail(cfg)
	if err != nil {
		return err
	}
	defer mailStore.Close()
	defer sessions.Close()

	// Checking mail is a sign of life.
	if _, err := hooks.ReportActivity(sessions, mailCheckFlags.agent, time.Now()); err != nil {
		return err
	}

	if mailCheckFlags.inject {
		block, err := client.CheckInject(mailCheckFlags.agent)
		if err != nil {
			return err
		}
		if block != "" {
			fmt.Print(block)
		}
	} else {
		msgs, err := client.Check(mailCheckFlags.agent)
		if err != nil {
			return err
		}
		if len(msgs) == 0 {
			fmt.Println("No new mail.")
		}
		for _, m := range msgs {
			printMessage(m)
		}
	}

	return hooks.RecordCheck(cfg.MailCheckStatePath(), mailCheckFlags.agent, time.Now())
}

func runMailList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	mailStore, err := mail.Open(cfg.MailDBPath())
	if err != nil {
		return err
	}
	defer mailStore.Close()

	msgs, err := mailStore.List(mail.ListFilter{
		From:   mailListFlags.from,
		To:     mailListFlags.to,
		Unread: mailListFlags.unread,
		Limit:  mailListFlags.limit,
	})
	if err != nil {
		return err
	}
	if len(msgs) == 0 {
		fmt.Println("No messages.")
		return nil
	}
	for _, m := range msgs {
		read := " "
		if !m.Read {
			read = "*"
		}
		fmt.Printf("%s %s  %s -> %s  [%s/%s]  %s\n",
			read, m.ID, m.From, m.To, m.Type, m.Priority, m.Subject)
	}
	return nil
}

func runMailRead(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	mailStore, err := mail.Open(cfg.MailDBPath())
	if err != nil {
		return err
	}
	defer mailStore.Close()

	already, err := mailStore.MarkRead(args[0])
	if err != nil {
		return err
	}
	if already {
		fmt.Println("Already read.")
	} else {
		fmt.Println("Marked read.")
	}
	return nil
}

func runMailReply(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	mailStore, sessions, client, err := openMail(cfg)
	if err != nil {
		return err
	}
	defer mailStore.Close()
	defer sessions.Close()

	res, err := client.Reply(args[0], mailReplyFlags.body, mailReplyFlags.from)
	if err != nil {
		return err
	}
	fmt.Printf("Replied to %d recipient(s)\n", res.RecipientCount)
	return nil
}

func runMailPurge(cmd *cobra.Command, args []string) error {
	if !mailPurgeFlags.all && mailPurgeFlags.olderThan == 0 && mailPurgeFlags.agent == "" {
		return oops.New(oops.CodeValidation, "purge needs --all, --older-than, or --agent")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	mailStore, err := mail.Open(cfg.MailDBPath())
	if err != nil {
		return err
	}
	defer mailStore.Close()

	n, err := mailStore.Purge(mail.PurgeFilter{
		All:         mailPurgeFlags.all,
		OlderThanMs: mailPurgeFlags.olderThan.Milliseconds(),
		Agent:       mailPurgeFlags.agent,
	})
	if err != nil {
		return err
	}
	fmt.Printf("Purged %d message(s)\n", n)
	return nil
}

func printMessage(m *mail.Message) {
	fmt.Printf("From: %s\nSubject: %s\nType: %s\nPriority: %s\nAt: %s\n\n%s\n",
		m.From, m.Subject, m.Type, m.Priority,
		m.CreatedAt.Local().Format(time.RFC822), m.Body)
	if m.Payload != "" {
		fmt.Printf("Payload: %s\n", m.Payload)
	}
	fmt.Println("---")
}
