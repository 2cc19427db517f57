// ABOUTME: Operational CLI for the messaging server
// ABOUTME: Issues tokens, lists conversations, sends messages, and tails the event stream

package main

import (
	"bufio"
	"bytes"
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	json "github.com/goccy/go-json"

	"github.com/lessonloop/messaging/internal/auth"
	"github.com/lessonloop/messaging/internal/store"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: messaging-cli <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  token --secret S --user U --name N --role R   Issue a bearer token")
		fmt.Println("  conversations --addr A --token T              List conversations")
		fmt.Println("  send --addr A --token T --conv C --text M     Send a message")
		fmt.Println("  watch --addr A --token T                      Tail the event stream")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "token":
		err = runToken(os.Args[2:])
	case "conversations":
		err = runConversations(ctx, os.Args[2:])
	case "send":
		err = runSend(ctx, os.Args[2:])
	case "watch":
		err = runWatch(ctx, os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}
}

func runToken(args []string) error {
	fs := flag.NewFlagSet("token", flag.ExitOnError)
	secret := fs.String("secret", "", "JWT signing secret")
	user := fs.String("user", "", "user id")
	name := fs.String("name", "", "display name")
	role := fs.String("role", "student", "role: student, teacher or support")
	ttl := fs.Duration("ttl", 24*time.Hour, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *secret == "" || *user == "" {
		return fmt.Errorf("--secret and --user are required")
	}

	token, err := auth.IssueToken([]byte(*secret), auth.Identity{
		UserID:      *user,
		DisplayName: *name,
		Role:        store.Role(*role),
	}, *ttl)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}

func apiRequest(ctx context.Context, method, addr, path, token string, body any) (*http.Response, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, "http://"+addr+path, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	return http.DefaultClient.Do(req)
}

func runConversations(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("conversations", flag.ExitOnError)
	addr := fs.String("addr", "localhost:8080", "server address")
	token := fs.String("token", "", "bearer token")
	if err := fs.Parse(args); err != nil {
		return err
	}

	resp, err := apiRequest(ctx, http.MethodGet, *addr, "/api/conversations", *token, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned %d", resp.StatusCode)
	}

	var convs []store.Conversation
	if err := json.NewDecoder(resp.Body).Decode(&convs); err != nil {
		return err
	}

	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)
	for _, c := range convs {
		cyan.Printf("%s", c.ID)
		fmt.Printf("  %s / %s", c.Participants[0].DisplayName, c.Participants[1].DisplayName)
		if c.UnreadCount > 0 {
			yellow.Printf("  (%d unread)", c.UnreadCount)
		}
		fmt.Printf("  %s\n", c.LastActivity.Format(time.RFC3339))
	}
	if len(convs) == 0 {
		fmt.Println("no conversations")
	}
	return nil
}

func runSend(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("send", flag.ExitOnError)
	addr := fs.String("addr", "localhost:8080", "server address")
	token := fs.String("token", "", "bearer token")
	conv := fs.String("conv", "", "conversation id")
	text := fs.String("text", "", "message text")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *conv == "" || *text == "" {
		return fmt.Errorf("--conv and --text are required")
	}

	resp, err := apiRequest(ctx, http.MethodPost, *addr, "/api/conversations/"+*conv+"/messages", *token,
		map[string]string{"content": *text})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("server returned %d", resp.StatusCode)
	}

	var msg store.Message
	if err := json.NewDecoder(resp.Body).Decode(&msg); err != nil {
		return err
	}
	green := color.New(color.FgGreen)
	green.Print("sent ")
	fmt.Println(msg.ID)
	return nil
}

func runWatch(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	addr := fs.String("addr", "localhost:8080", "server address")
	token := fs.String("token", "", "bearer token")
	if err := fs.Parse(args); err != nil {
		return err
	}

	resp, err := apiRequest(ctx, http.MethodGet, *addr, "/api/events", *token, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned %d", resp.StatusCode)
	}

	cyan := color.New(color.FgCyan)
	gray := color.New(color.FgHiBlack)
	fmt.Println("watching events (ctrl-c to stop)...")

	scanner := bufio.NewScanner(resp.Body)
	var event string
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			gray.Printf("%s ", time.Now().Format("15:04:05"))
			cyan.Printf("%-22s", event)
			fmt.Println(strings.TrimPrefix(line, "data: "))
		}
	}
	return scanner.Err()
}
