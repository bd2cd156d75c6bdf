package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/urfave/cli/v3"
	"github.com/viperadnan-git/tubestash/internal/client/api/response"
)

var apiFlag = &cli.StringFlag{
	Name:    "api",
	Usage:   "Client API base URL (defaults to http://<client.listen>)",
	Sources: cli.EnvVars("TUBESTASH_API_URL"),
}

func apiBaseURL(cmd *cli.Command) (string, error) {
	if v := cmd.String("api"); v != "" {
		return strings.TrimRight(v, "/"), nil
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return "", err
	}
	return "http://" + cfg.Client.Listen, nil
}

// callAPI performs one request against the client API and decodes the
// envelope's data into out.
func callAPI(ctx context.Context, method, url string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("client api unreachable: %w", err)
	}
	defer resp.Body.Close()

	var env struct {
		Success bool               `json:"success"`
		Data    json.RawMessage    `json:"data"`
		Error   *response.APIError `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decode response (%d): %w", resp.StatusCode, err)
	}
	if !env.Success {
		if env.Error != nil {
			return fmt.Errorf("%s: %s", env.Error.Code, env.Error.Message)
		}
		return fmt.Errorf("request failed with status %d", resp.StatusCode)
	}
	if out != nil {
		return json.Unmarshal(env.Data, out)
	}
	return nil
}
