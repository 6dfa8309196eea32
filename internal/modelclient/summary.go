package modelclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/querydesk/querydesk/internal/query"
)

// Summary is the synthesized answer. Degraded is set when Answer is the
// fallback text and Cause holds the reason.
type Summary struct {
	Answer   string
	Degraded bool
	Cause    error
}

var errResultNotSerializable = errors.New("result not serializable")

// Summarize asks the model to explain result in plain language. It never
// fails; a failed call yields a degraded fallback answer.
func (c *Client) Summarize(ctx context.Context, question, queryText string, result query.Result) Summary {
	resultJSON, err := json.Marshal(result.Records())
	if err != nil {
		cause := fmt.Errorf("%w: %v", errResultNotSerializable, err)
		return fallbackSummary(cause, result.RowCount())
	}

	content, err := c.complete(ctx, summaryMessages(question, queryText, string(resultJSON)), c.summaryTemperature)
	if err != nil {
		return fallbackSummary(err, result.RowCount())
	}
	return Summary{Answer: content}
}

func fallbackSummary(cause error, rowCount int) Summary {
	return Summary{
		Answer:   fmt.Sprintf("Failed to generate structured answer (%s). The query returned %s.", failureClass(cause), pluralRows(rowCount)),
		Degraded: true,
		Cause:    cause,
	}
}

func failureClass(err error) string {
	switch {
	case errors.Is(err, ErrGenerationUnavailable):
		return "model unavailable"
	case errors.Is(err, ErrGenerationEmpty):
		return "model returned no content"
	case errors.Is(err, ErrGenerationMalformed):
		return "model response malformed"
	case errors.Is(err, errResultNotSerializable):
		return "result not serializable"
	default:
		return "unexpected error"
	}
}

func pluralRows(n int) string {
	if n == 1 {
		return "1 row"
	}
	return fmt.Sprintf("%d rows", n)
}
