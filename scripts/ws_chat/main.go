package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/wirechat-rooms/internal/proto"
)

type chatFrame struct {
	Message string `json:"message"`
}

func main() {
	if err := run(); err != nil {
		log.Printf("ws_chat: %v", err)
		os.Exit(1)
	}
}

func run() error {
	server := flag.String("server", "ws://localhost:8080", "server base address")
	name := flag.String("name", "", "display name")
	room := flag.String("room", "general", "room to join")
	flag.Parse()

	baseCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()

	addr := fmt.Sprintf("%s/api/rooms/%s/websocket?name=%s",
		strings.TrimSuffix(*server, "/"), url.PathEscape(*room), url.QueryEscape(*name))

	conn, _, err := websocket.Dial(ctx, addr, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	fmt.Printf("Connected to room %s\n", *room)
	fmt.Println("Type messages and press Enter to send. Ctrl+C to exit.")

	go func() {
		defer cancel()
		readLoop(ctx, conn)
	}()

	writeLoop(ctx, conn)

	stop()
	cancel()
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
	return nil
}

func readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		var outbound proto.Outbound
		if err := wsjson.Read(ctx, conn, &outbound); err != nil {
			// Treat expected shutdowns quietly.
			if errors.Is(err, context.Canceled) {
				return
			}
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return
			}
			log.Printf("read error: %v", err)
			return
		}

		at := time.UnixMilli(outbound.Timestamp).Format("15:04:05")
		switch outbound.Type {
		case proto.OutboundTypeMessage:
			fmt.Printf("%s %s: %s\n", at, outbound.Name, outbound.Message)
		case proto.OutboundTypeJoined, proto.OutboundTypeLeft:
			fmt.Printf("%s * %s %s\n", at, outbound.Name, outbound.Message)
		case proto.OutboundTypeError:
			fmt.Printf("%s ! %s (%s)\n", at, outbound.Message, outbound.Code)
		default:
			fmt.Printf("type=%s message=%s\n", outbound.Type, outbound.Message)
		}
	}
}

func writeLoop(ctx context.Context, conn *websocket.Conn) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			text := strings.TrimSpace(line)
			if text == "" {
				continue
			}
			if err := wsjson.Write(ctx, conn, chatFrame{Message: text}); err != nil {
				log.Printf("send error: %v", err)
				return
			}
		}
	}
}
