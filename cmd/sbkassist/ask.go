package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/sbk2k1/sbk-assistant/internal/handler"
)

func newAskCmd() *cobra.Command {
	var (
		url     string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "ask [QUESTION]",
		Short: "chat with a running server over the framed websocket protocol",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, _, err := websocket.DefaultDialer.DialContext(cmd.Context(), url, nil)
			if err != nil {
				return fmt.Errorf("dial %s: %w", url, err)
			}
			defer conn.Close()

			out := cmd.OutOrStdout()
			if len(args) == 1 {
				return askOnce(conn, out, args[0], timeout)
			}
			you := color.New(color.FgGreen, color.Bold).SprintFunc()
			scanner := bufio.NewScanner(cmd.InOrStdin())
			for {
				fmt.Fprint(out, you("You: "))
				if !scanner.Scan() {
					return scanner.Err()
				}
				question := strings.TrimSpace(scanner.Text())
				if question == "" {
					continue
				}
				if strings.EqualFold(question, "exit") {
					return nil
				}
				if err := askOnce(conn, out, question, timeout); err != nil {
					return err
				}
			}
		},
	}
	cmd.Flags().StringVar(&url, "url", "ws://localhost:5050/chat", "chat websocket url")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "time to wait for a whole answer")
	return cmd
}

func askOnce(conn *websocket.Conn, out io.Writer, question string, timeout time.Duration) error {
	assistant := color.New(color.FgCyan, color.Bold).SprintFunc()
	faint := color.New(color.Faint).SprintFunc()
	failed := color.New(color.FgRed).SprintFunc()

	if err := conn.WriteMessage(websocket.TextMessage, []byte(question)); err != nil {
		return err
	}
	fmt.Fprint(out, assistant("Assistant: "))
	_ = conn.SetReadDeadline(time.Now().Add(timeout))
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var frame handler.Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			return fmt.Errorf("server is not using the framed protocol: %w", err)
		}
		switch frame.Type {
		case handler.FrameToken:
			fmt.Fprint(out, frame.Data)
		case handler.FrameSources:
			fmt.Fprintln(out)
			for _, src := range frame.Sources {
				fmt.Fprintln(out, faint(fmt.Sprintf("  [%s #%d] score %.3f", src.Source, src.ChunkIndex, src.Score)))
			}
		case handler.FrameError:
			fmt.Fprintln(out, failed(fmt.Sprintf("error %d: %s", frame.Code, frame.Message)))
		case handler.FrameEnd:
			fmt.Fprintln(out)
			return nil
		}
	}
}
