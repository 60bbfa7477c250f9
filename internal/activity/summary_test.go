package activity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func at(minute int) time.Time {
	return time.Date(2024, 3, 5, 9, minute, 0, 0, time.UTC)
}

func TestSummarize(t *testing.T) {
	events := []Event{
		{Type: EventProcessingStarted, Timestamp: at(0), Vendor: "Slack", SubjectName: "Jane Doe"},
		{Type: EventProcessingComplete, Timestamp: at(1), Vendor: "Slack", SubjectName: "Jane Doe", Records: 12, ExecutionSeconds: 1.234},
		{Type: EventProcessingFailed, Timestamp: at(2), Vendor: "Jira", SubjectName: "jane  doe", Error: "bad export"},
		{Type: EventProcessingComplete, Timestamp: at(3), Vendor: "Zendesk", SubjectName: "Jane Doe", Records: 3, ExecutionSeconds: 0.5},
		{Type: EventProcessingComplete, Timestamp: at(4), Vendor: "Slack", SubjectName: "John Roe", Records: 99},
	}

	s := Summarize(events, "Jane Doe")

	assert.Equal(t, "2024-03-05", s.ProcessingDate)
	assert.Equal(t, []string{"Slack", "Zendesk"}, s.VendorsProcessed)
	assert.Equal(t, []string{"Jira"}, s.VendorsFailed)
	assert.Equal(t, 15, s.TotalRecords)
	assert.Equal(t, 1.73, s.TotalExecutionSeconds)
	assert.False(t, s.AllSuccessful)
}

func TestSummarizeRerunClearsFailure(t *testing.T) {
	events := []Event{
		{Type: EventProcessingComplete, Timestamp: at(5), Vendor: "Jira", SubjectName: "Jane Doe", Records: 4},
		{Type: EventProcessingFailed, Timestamp: at(1), Vendor: "Jira", SubjectName: "Jane Doe"},
		{Type: EventProcessingComplete, Timestamp: at(3), Vendor: "Jira", SubjectName: "Jane Doe", Records: 2},
	}

	s := Summarize(events, "Jane Doe")

	assert.Equal(t, []string{"Jira"}, s.VendorsProcessed)
	assert.Empty(t, s.VendorsFailed)
	assert.Equal(t, 4, s.TotalRecords, "only the latest run counts")
	assert.True(t, s.AllSuccessful)
}

func TestSummarizeNoEvents(t *testing.T) {
	s := Summarize(nil, "Jane Doe")

	assert.Empty(t, s.ProcessingDate)
	assert.NotNil(t, s.VendorsProcessed)
	assert.NotNil(t, s.VendorsFailed)
	assert.True(t, s.AllSuccessful)
}

func TestSameSubject(t *testing.T) {
	assert.True(t, SameSubject(" Jane   DOE", "jane doe"))
	assert.False(t, SameSubject("Jane Doe", "Jane Do"))
}
