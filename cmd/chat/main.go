package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/Kyria-Zaire/Roomshare-sub000/client"
	"github.com/google/uuid"
)

// Terminal chat client. The application shell owns the realtime connection
// and hands it to the thread view; closing the view tears both down.
func main() {
	server := flag.String("server", "http://localhost:8080", "API base URL")
	wsURL := flag.String("ws", "ws://localhost:8080/api/v1/ws", "websocket URL")
	token := flag.String("token", os.Getenv("ROOMSHARE_TOKEN"), "JWT for the current user")
	userID := flag.String("user", "", "current user id")
	conversationID := flag.String("conversation", "", "conversation to open")
	flag.Parse()

	uid, err := uuid.Parse(*userID)
	if err != nil {
		log.Fatalf("🔥 Invalid user id: %v", err)
	}
	cid, err := uuid.Parse(*conversationID)
	if err != nil {
		log.Fatalf("🔥 Invalid conversation id: %v", err)
	}

	api := client.NewAPI(*server, *token)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	socket, err := client.DialSocket(ctx, *wsURL, *token)
	cancel()
	if err != nil {
		log.Printf("Realtime unavailable, continuing with polling only: %v", err)
	}

	thread := client.NewThread(api, socketOrNil(socket), cid, uid)
	thread.OnUpdate = func(messages []client.DisplayMessage) {
		fmt.Print("\033[H\033[2J")
		for _, m := range messages {
			marker := ""
			if m.Pending {
				marker = " (sending...)"
			}
			who := "them"
			if m.SenderID == uid {
				who = "you"
			}
			fmt.Printf("[%s] %s: %s%s\n", m.CreatedAt.Format("15:04"), who, m.Body, marker)
		}
		fmt.Print("> ")
	}
	thread.OnSendFailed = func(draft string, err error) {
		fmt.Printf("\nSend failed (%v), your draft: %s\n> ", err, draft)
	}

	openCtx, cancelOpen := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelOpen()
	if err := thread.Open(openCtx); err != nil {
		log.Fatalf("🔥 Failed to open conversation: %v", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		<-sigCh
		thread.Close()
		if socket != nil {
			socket.Close()
		}
		os.Exit(0)
	}()

	unread := api.UnreadCount(context.Background())
	fmt.Printf("Unread messages elsewhere: %d\n> ", unread)

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		body := strings.TrimSpace(scanner.Text())
		if body == "" {
			fmt.Print("> ")
			continue
		}
		if err := thread.Send(body); err != nil {
			fmt.Printf("Cannot send: %v\n> ", err)
		}
	}

	thread.Close()
	if socket != nil {
		socket.Close()
	}
}

func socketOrNil(s *client.Socket) client.Subscriber {
	if s == nil {
		return nil
	}
	return s
}
