package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/urfave/cli/v2"
)

// sendCmd is a minimal demo producer that feeds the ingestion endpoint.
func sendCmd() *cli.Command {
	return &cli.Command{
		Name:  "send",
		Usage: "Publish a message to a running server (demo producer)",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Value: "http://localhost:8480",
				Usage: "Base URL of the server",
			},
			&cli.StringFlag{
				Name:     "user",
				Required: true,
				Usage:    "Recipient user UUID",
			},
			&cli.StringFlag{
				Name:     "message",
				Required: true,
				Usage:    "Message payload",
			},
		},
		Action: func(c *cli.Context) error {
			body, err := json.Marshal(map[string]string{
				"user_id": c.String("user"),
				"message": c.String("message"),
			})
			if err != nil {
				return err
			}

			client := &http.Client{Timeout: 10 * time.Second}
			resp, err := client.Post(c.String("addr")+"/v1/messages", "application/json", bytes.NewReader(body))
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			var out struct {
				Sequence uint64 `json:"sequence"`
				Error    string `json:"error"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
				return err
			}
			if resp.StatusCode != http.StatusAccepted {
				return fmt.Errorf("server rejected message (%d): %s", resp.StatusCode, out.Error)
			}

			fmt.Printf("accepted, sequence=%d\n", out.Sequence)
			return nil
		},
	}
}
