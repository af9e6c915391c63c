package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"chat-sync/client"
	"chat-sync/internal/models"

	"github.com/spf13/cobra"
)

var (
	serverURL string
	username  string
	password  string
	register  bool
)

func main() {
	root := &cobra.Command{
		Use:   "chat",
		Short: "Terminal client for the chat relay",
		RunE:  run,
	}
	root.Flags().StringVar(&serverURL, "server", "http://localhost:3001", "REST API base URL")
	root.Flags().StringVarP(&username, "username", "u", "", "username")
	root.Flags().StringVarP(&password, "password", "p", "", "password")
	root.Flags().BoolVar(&register, "register", false, "create the account before logging in")
	root.MarkFlagRequired("username")
	root.MarkFlagRequired("password")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	c := client.New(client.Config{
		BaseURL: serverURL,
		Enabled: true,
		Notify: func(severity client.Severity, message string) {
			fmt.Printf("\n[%s] %s\n> ", severity, message)
		},
	})
	defer c.Teardown()

	ctx := cmd.Context()
	if register {
		if err := c.Register(ctx, username, password); err != nil {
			return fmt.Errorf("register failed: %w", err)
		}
	} else {
		if err := c.Login(ctx, username, password); err != nil {
			return fmt.Errorf("login failed: %w", err)
		}
	}

	c.Connect()
	if err := c.LoadConversations(ctx); err != nil {
		return fmt.Errorf("loading conversations failed: %w", err)
	}

	printConversations(c)
	fmt.Println(`Commands: /list, /open <id>, /new <user-id> [name], /rename <name>, /delete, /quit; anything else sends a message.`)

	scanner := bufio.NewScanner(os.Stdin)
	fmt.Print("> ")
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			if quit := handleLine(c, line); quit {
				return nil
			}
		}
		fmt.Print("> ")
	}
	return scanner.Err()
}

func handleLine(c *client.Client, line string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch {
	case line == "/quit":
		return true

	case line == "/list":
		printConversations(c)

	case strings.HasPrefix(line, "/open "):
		id := strings.TrimSpace(strings.TrimPrefix(line, "/open"))
		if err := c.OpenConversation(ctx, id); err != nil {
			log.Printf("open failed: %v", err)
			return false
		}
		for _, msg := range c.Store().Messages(id) {
			printMessage(c, msg)
		}
		_ = c.MarkRead(ctx, id)

	case strings.HasPrefix(line, "/new "):
		fields := strings.Fields(strings.TrimPrefix(line, "/new"))
		if len(fields) == 0 {
			log.Println("usage: /new <user-id> [name]")
			return false
		}
		var peer int
		if _, err := fmt.Sscanf(fields[0], "%d", &peer); err != nil {
			log.Println("usage: /new <user-id> [name]")
			return false
		}
		req := models.CreateConversationRequest{Participants: []int{peer}}
		if len(fields) > 1 {
			req.Name = strings.Join(fields[1:], " ")
		}
		conv, err := c.CreateConversation(ctx, req)
		if err != nil {
			log.Printf("create failed: %v", err)
			return false
		}
		fmt.Printf("created %s\n", conv.ID)

	case strings.HasPrefix(line, "/rename "):
		active := c.Store().ActiveID()
		if active == "" {
			log.Println("no open conversation")
			return false
		}
		name := strings.TrimSpace(strings.TrimPrefix(line, "/rename"))
		if err := c.RenameConversation(ctx, active, name); err != nil {
			log.Printf("rename failed: %v", err)
		}

	case line == "/delete":
		active := c.Store().ActiveID()
		if active == "" {
			log.Println("no open conversation")
			return false
		}
		if err := c.DeleteConversation(ctx, active); err != nil {
			log.Printf("delete failed: %v", err)
		}

	default:
		active := c.Store().ActiveID()
		if active == "" {
			log.Println("open a conversation first: /open <id>")
			return false
		}
		c.SendMessage(active, line)
	}
	return false
}

func printConversations(c *client.Client) {
	conversations := c.Store().Conversations()
	if len(conversations) == 0 {
		fmt.Println("no conversations")
		return
	}
	for _, conv := range conversations {
		name := conv.Name
		if name == "" {
			name = "(unnamed)"
		}
		preview, _ := c.Store().LastMessage(conv.ID)
		fmt.Printf("%s  %-20s %s\n", conv.ID, name, preview)
	}
}

func printMessage(c *client.Client, msg models.Message) {
	who := fmt.Sprintf("user %d", msg.SenderID)
	if msg.SenderID == c.Session().UserID {
		who = "me"
	}
	fmt.Printf("[%s] %s: %s\n", msg.CreatedAt.Format("15:04"), who, msg.Content)
}
