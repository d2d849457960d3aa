// internal/search/queue.go
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	apperrors "loan-origination/internal/common/errors"
	"loan-origination/internal/lifecycle"
	"loan-origination/internal/models"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// QueueDocument is the work-queue view of an application.
type QueueDocument struct {
	ApplicationID   string                   `json:"application_id"`
	Status          lifecycle.Status         `json:"status"`
	StatusLabel     string                   `json:"status_label"`
	Classification  lifecycle.Classification `json:"classification"`
	BorrowerName    string                   `json:"borrower_name"`
	BorrowerEmail   string                   `json:"borrower_email"`
	SchoolName      string                   `json:"school_name"`
	ProgramName     string                   `json:"program_name"`
	RequestedAmount float64                  `json:"requested_amount"`
	HasCoBorrower   bool                     `json:"has_co_borrower"`
	SubmittedAt     *time.Time               `json:"submitted_at,omitempty"`
	UpdatedAt       time.Time                `json:"updated_at"`
}

// DocumentFor flattens an application into its queue document.
func DocumentFor(app models.Application) QueueDocument {
	b := app.FormData.BorrowerInfo
	return QueueDocument{
		ApplicationID:   app.ID,
		Status:          app.Status,
		StatusLabel:     app.Status.Label(),
		Classification:  lifecycle.Classify(app.Status),
		BorrowerName:    strings.TrimSpace(b.FirstName + " " + b.LastName),
		BorrowerEmail:   b.Email,
		SchoolName:      app.FormData.LoanDetails.SchoolName,
		ProgramName:     app.FormData.LoanDetails.ProgramName,
		RequestedAmount: app.FormData.LoanDetails.RequestedAmount,
		HasCoBorrower:   app.FormData.HasCoBorrower(),
		SubmittedAt:     app.SubmittedAt,
		UpdatedAt:       app.UpdatedAt,
	}
}

// Query selects a page of the work queue.
type Query struct {
	Classification lifecycle.Classification
	Statuses       []lifecycle.Status
	From           int
	Size           int
}

type Result struct {
	Items     []QueueDocument `json:"items"`
	TotalHits int64           `json:"total_hits"`
	Took      int64           `json:"took"`
}

// Queue indexes applications and searches them by classification.
type Queue struct {
	client *elasticsearch.Client
	index  string
}

func NewQueue(client *elasticsearch.Client, index string) *Queue {
	return &Queue{client: client, index: index}
}

// IndexApplication upserts the queue document keyed by application id.
func (q *Queue) IndexApplication(ctx context.Context, app models.Application) error {
	body, err := json.Marshal(DocumentFor(app))
	if err != nil {
		return apperrors.NewIndexFailedError(app.ID, err)
	}

	req := esapi.IndexRequest{
		Index:      q.index,
		DocumentID: app.ID,
		Body:       bytes.NewReader(body),
	}
	res, err := req.Do(ctx, q.client)
	if err != nil {
		return apperrors.NewIndexFailedError(app.ID, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return apperrors.NewIndexFailedError(app.ID, fmt.Errorf("index request failed: %s", res.String()))
	}
	return nil
}

func buildQueueQuery(query Query) map[string]interface{} {
	filters := []interface{}{}
	if query.Classification != "" {
		filters = append(filters, map[string]interface{}{
			"term": map[string]interface{}{"classification": string(query.Classification)},
		})
	}
	if len(query.Statuses) > 0 {
		names := make([]string, len(query.Statuses))
		for i, s := range query.Statuses {
			names[i] = string(s)
		}
		filters = append(filters, map[string]interface{}{
			"terms": map[string]interface{}{"status": names},
		})
	}

	return map[string]interface{}{
		"query": map[string]interface{}{
			"bool": map[string]interface{}{"filter": filters},
		},
		"sort": []interface{}{
			map[string]interface{}{"updated_at": map[string]interface{}{"order": "asc"}},
		},
	}
}

// PageBounds clamps a requested page to the queue defaults.
func PageBounds(from, size int) (int, int) {
	if from < 0 {
		from = 0
	}
	if size < 1 {
		size = defaultPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}
	return from, size
}

type searchResponse struct {
	Took int64 `json:"took"`
	Hits struct {
		Total struct {
			Value int64 `json:"value"`
		} `json:"total"`
		Hits []struct {
			Source QueueDocument `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// Search returns the oldest-updated applications matching query.
func (q *Queue) Search(ctx context.Context, query Query) (*Result, error) {
	if query.Classification != "" && !query.Classification.Valid() {
		return nil, apperrors.NewInvalidClassificationError(string(query.Classification))
	}

	body, err := json.Marshal(buildQueueQuery(query))
	if err != nil {
		return nil, apperrors.NewSearchFailedError(err)
	}
	from, size := PageBounds(query.From, query.Size)

	req := esapi.SearchRequest{
		Index: []string{q.index},
		Body:  bytes.NewReader(body),
		From:  &from,
		Size:  &size,
	}
	res, err := req.Do(ctx, q.client)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, apperrors.NewTimeoutError("elasticsearch", err)
		}
		return nil, apperrors.NewSearchFailedError(err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, apperrors.NewSearchFailedError(fmt.Errorf("search query failed: %s", res.String()))
	}

	var r searchResponse
	if err := json.NewDecoder(res.Body).Decode(&r); err != nil {
		return nil, apperrors.NewSearchFailedError(err)
	}

	out := &Result{
		Items:     make([]QueueDocument, 0, len(r.Hits.Hits)),
		TotalHits: r.Hits.Total.Value,
		Took:      r.Took,
	}
	for _, h := range r.Hits.Hits {
		out.Items = append(out.Items, h.Source)
	}
	return out, nil
}
