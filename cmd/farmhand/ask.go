package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// askCMD is a one-shot client against a running server, handy for smoke
// testing without curl gymnastics.
func askCMD() *cobra.Command {
	var serverURL string
	var conversationID string
	var ask = &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a question against a running server",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			question := strings.Join(args, " ")
			client := &http.Client{Timeout: 2 * time.Minute}
			base := strings.TrimRight(serverURL, "/")

			if conversationID == "" {
				id, err := createConversation(client, base)
				if err != nil {
					return err
				}
				conversationID = id
			}

			body, err := json.Marshal(map[string]string{"question": question})
			if err != nil {
				return err
			}
			resp, err := client.Post(base+"/api/conversations/"+conversationID+"/ask", "application/json", bytes.NewReader(body))
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			var out struct {
				Answer   string `json:"answer"`
				Strategy string `json:"strategy"`
				Sources  []struct {
					Kind  string `json:"kind"`
					Title string `json:"title"`
					URL   string `json:"url"`
				} `json:"sources"`
				Error string `json:"error"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
				return err
			}
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("server returned %d: %s", resp.StatusCode, out.Error)
			}

			fmt.Printf("[%s] %s\n", out.Strategy, out.Answer)
			for _, s := range out.Sources {
				if s.URL != "" {
					fmt.Printf("  - %s: %s (%s)\n", s.Kind, s.Title, s.URL)
				} else {
					fmt.Printf("  - %s: %s\n", s.Kind, s.Title)
				}
			}
			return nil
		},
	}
	ask.Flags().StringVar(&serverURL, "server", getenv("FARMHAND_SERVER", "http://localhost:8080"), "server base URL")
	ask.Flags().StringVar(&conversationID, "conversation", "", "existing conversation id (default creates one)")

	return ask
}

func createConversation(client *http.Client, base string) (string, error) {
	resp, err := client.Post(base+"/api/conversations", "application/json", strings.NewReader(`{}`))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("create conversation: server returned %d", resp.StatusCode)
	}
	var conv struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&conv); err != nil {
		return "", err
	}
	return conv.ID, nil
}
