package sqsqueue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

type Producer struct {
	SQS      *sqs.Client
	QueueURL string
}

// DispatchJob asks the worker to execute one reminder dispatch run. The
// scheduler's cron rule and the API's async path both produce these.
type DispatchJob struct {
	TriggeredBy string    `json:"triggeredBy"`
	Source      string    `json:"source"`
	RequestedAt time.Time `json:"requestedAt"`
}

func (p *Producer) EnqueueDispatch(ctx context.Context, triggeredBy, source string) error {
	job := DispatchJob{
		TriggeredBy: triggeredBy,
		Source:      source,
		RequestedAt: time.Now().UTC(),
	}
	body, err := json.Marshal(job)
	if err != nil {
		return err
	}

	_, err = p.SQS.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    &p.QueueURL,
		MessageBody: str(string(body)),
	})
	return err
}

func str(s string) *string { return &s }
