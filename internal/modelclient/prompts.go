package modelclient

import "fmt"

const (
	roleSystem = "system"
	roleUser   = "user"
)

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func queryMessages(dialect, question string) []message {
	return []message{
		{Role: roleSystem, Content: fmt.Sprintf("You are a SQL generator for a %s database. Reply with a single query and nothing else.", dialect)},
		{Role: roleUser, Content: fmt.Sprintf("Convert the following question into a valid %s query:\n\nQuestion: %s\nSQL Query:", dialect, question)},
	}
}

func summaryMessages(question, queryText, resultJSON string) []message {
	return []message{
		{Role: roleSystem, Content: "You are a data analyst summarizing SQL results into a readable answer."},
		{Role: roleUser, Content: fmt.Sprintf("Given the question: %q, SQL: %q, and result in JSON: %s, provide a clear, structured answer summarizing the result.", question, queryText, resultJSON)},
	}
}
