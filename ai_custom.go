package squid

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/buger/jsonparser"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/squidcloud/squid-go/pkg/client"
	"github.com/squidcloud/squid-go/pkg/constants"
)

type customAPIRequest struct {
	Prompt string `json:"prompt"`
	JobID  string `json:"jobId,omitempty"`
}

func (a *AIChat) askCustomAPI(ctx context.Context, req aiRequest) (string, error) {
	body, err := json.Marshal(customAPIRequest{Prompt: req.prompt, JobID: req.jobID})
	if err != nil {
		return "", err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.custom.URL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: %v", constants.ErrCustomAPI, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set(constants.ClientIDHeader, a.c.ConnectionDetails().ClientID)
	for k, v := range a.custom.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := a.cfg.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%w: %v", constants.ErrCustomAPI, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: read response: %v", constants.ErrCustomAPI, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("%w: %s", constants.ErrCustomAPI, customAPIError(resp.StatusCode, data))
	}

	var answer string
	if len(data) == 0 {
		if req.jobID == "" {
			return "", fmt.Errorf("%w: job id must be set when the custom api answers with an empty body", constants.ErrPrecondition)
		}
		answer, err = a.c.Jobs().AwaitJob(ctx, req.jobID)
		if err != nil {
			return "", err
		}
	} else {
		answer, err = customAPIAnswer(data)
		if err != nil {
			return "", err
		}
	}

	a.upsertMessage(&AIMessage{ID: uuid.NewString(), Message: answer, JobID: req.jobID}, false)
	return answer, nil
}

// customAPIError prefers the "error" field of a JSON body over the status
// line.
func customAPIError(code int, body []byte) string {
	if msg, err := jsonparser.GetString(body, "error"); err == nil && msg != "" {
		return msg
	}
	return fmt.Sprintf("%d - %s", code, http.StatusText(code))
}

// customAPIAnswer extracts the "response" field. A body without one answers
// with an empty string.
func customAPIAnswer(body []byte) (string, error) {
	if !json.Valid(body) {
		return "", fmt.Errorf("%w: response is not valid JSON", constants.ErrCustomAPI)
	}
	answer, err := jsonparser.GetString(body, "response")
	if err != nil {
		// missing, or not a string
		return "", nil
	}
	return answer, nil
}

func formatAPIAnswer(resp client.AIAPIResponse) string {
	var b strings.Builder
	b.WriteString("### Result\n\n")
	b.WriteString(resp.Answer)
	if resp.Explanation != "" {
		b.WriteString("\n\n### Walkthrough\n\n")
		b.WriteString(resp.Explanation)
	}
	return b.String()
}

func formatQueryAnswer(resp client.AIQueryResponse) string {
	var b strings.Builder
	b.WriteString("### Result\n\n")
	b.WriteString(resp.Answer)
	if resp.ExecutedQuery != "" {
		lang := resp.QueryMarkdownType
		if lang == "" {
			lang = "sql"
		}
		fmt.Fprintf(&b, "\n\n### Executed Query\n\n```%s\n%s\n```", lang, resp.ExecutedQuery)
		if resp.RawResultsURL != "" {
			fmt.Fprintf(&b, "\n[View Raw Results](%s)\n\n", resp.RawResultsURL)
		}
	}
	if resp.Explanation != "" {
		b.WriteString("\n\n### Walkthrough\n\n")
		b.WriteString(resp.Explanation)
	}
	return b.String()
}
