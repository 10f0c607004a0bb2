package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/stef44n/messaging-app/internal/client"

	"golang.org/x/term"
)

const usage = `usage: dmctl [-server URL] <command> [args]

commands:
  signup <username> <email>     create an account (prompts for password)
  login <email>                 log in (prompts for password)
  logout                        drop the local session
  profile                       show the logged-in user's profile
  set-bio <text>                update the profile bio
  search <query>                find users by username
  inbox                         list conversations with unread counts
  chat <userID>                 show the thread with a user (marks it read)
  send <userID> <text...>       send a direct message
  delete <messageID>            delete one of your own messages
  watch                         poll the inbox and print updates
`

func main() {
	server := flag.String("server", envOr("DM_SERVER", "http://localhost:8080"), "server base URL")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	mgr := client.NewManager(strings.TrimRight(*server, "/")+"/api", client.NewFileStore(sessionPath()), nil)
	defer mgr.Close()
	if err := mgr.Restore(); err != nil {
		fatal(err)
	}
	mgr.OnLogout(func() {
		fmt.Fprintln(os.Stderr, "session expired, please log in again")
	})

	ctx := context.Background()
	mgr.Activity()
	if err := run(ctx, mgr, flag.Args()); err != nil {
		fatal(err)
	}
}

func run(ctx context.Context, mgr *client.Manager, args []string) error {
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "signup":
		if len(rest) != 2 {
			return fmt.Errorf("usage: signup <username> <email>")
		}
		pw, err := promptPassword()
		if err != nil {
			return err
		}
		u, err := mgr.Signup(ctx, rest[0], rest[1], pw)
		if err != nil {
			return err
		}
		fmt.Printf("account created: %s (#%d)\n", u.Username, u.ID)
		return nil

	case "login":
		if len(rest) != 1 {
			return fmt.Errorf("usage: login <email>")
		}
		pw, err := promptPassword()
		if err != nil {
			return err
		}
		u, err := mgr.Login(ctx, rest[0], pw)
		if err != nil {
			return err
		}
		fmt.Printf("logged in as %s (#%d)\n", u.Username, u.ID)
		return nil

	case "logout":
		return mgr.Logout()

	case "profile":
		u, err := mgr.Profile(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("#%d %s <%s>\n", u.ID, u.Username, u.Email)
		if u.Bio != "" {
			fmt.Println(u.Bio)
		}
		if u.AvatarURL != "" {
			fmt.Println(u.AvatarURL)
		}
		return nil

	case "set-bio":
		if len(rest) == 0 {
			return fmt.Errorf("usage: set-bio <text>")
		}
		bio := strings.Join(rest, " ")
		_, err := mgr.UpdateProfile(ctx, client.ProfileUpdate{Bio: &bio})
		return err

	case "search":
		if len(rest) != 1 {
			return fmt.Errorf("usage: search <query>")
		}
		users, err := mgr.SearchUsers(ctx, rest[0])
		if err != nil {
			return err
		}
		for _, u := range users {
			fmt.Printf("#%d %s\n", u.ID, u.Username)
		}
		return nil

	case "inbox":
		convs, err := mgr.Inbox(ctx)
		if err != nil {
			return err
		}
		printInbox(convs)
		return nil

	case "chat":
		id, err := parseID(rest, "chat <userID>")
		if err != nil {
			return err
		}
		msgs, err := mgr.Conversation(ctx, id)
		if err != nil {
			return err
		}
		for _, msg := range msgs {
			printMessage(mgr, msg)
		}
		return nil

	case "send":
		if len(rest) < 2 {
			return fmt.Errorf("usage: send <userID> <text...>")
		}
		id, err := parseID(rest[:1], "send <userID> <text...>")
		if err != nil {
			return err
		}
		msg, err := mgr.SendMessage(ctx, id, strings.Join(rest[1:], " "))
		if err != nil {
			return err
		}
		fmt.Printf("sent #%d\n", msg.ID)
		return nil

	case "delete":
		id, err := parseID(rest, "delete <messageID>")
		if err != nil {
			return err
		}
		return mgr.DeleteMessage(ctx, id)

	case "watch":
		ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
		defer stop()
		fmt.Println("watching inbox, ^C to stop")
		mgr.Watch(ctx, 5*time.Second, printInbox)
		return nil

	default:
		flag.Usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func printInbox(convs []client.Conversation) {
	if len(convs) == 0 {
		fmt.Println("no conversations")
		return
	}
	for _, c := range convs {
		marker := " "
		if c.UnreadCount > 0 {
			marker = fmt.Sprintf("(%d)", c.UnreadCount)
		}
		fmt.Printf("%-4s #%d %-16s %s  %s\n",
			marker, c.User.ID, c.User.Username,
			c.LastMessageAt.Local().Format("Jan 02 15:04"), c.LastMessage)
	}
}

func printMessage(mgr *client.Manager, msg client.Message) {
	who := msg.Sender.Username
	if me := mgr.CurrentUser(); me != nil && msg.SenderID == me.ID {
		who = "me"
	}
	fmt.Printf("[%s] %s: %s\n", msg.CreatedAt.Local().Format("15:04"), who, msg.Body)
}

func parseID(args []string, usage string) (uint, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("usage: %s", usage)
	}
	n, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil || n == 0 {
		return 0, fmt.Errorf("usage: %s", usage)
	}
	return uint(n), nil
}

func promptPassword() (string, error) {
	fmt.Fprint(os.Stderr, "password: ")
	if term.IsTerminal(int(os.Stdin.Fd())) {
		b, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
	// piped input, e.g. in scripts
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func sessionPath() string {
	if p := os.Getenv("DM_SESSION_FILE"); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".dmctl", "session.json")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "error:", err)
	os.Exit(1)
}
