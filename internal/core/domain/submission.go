package domain

import "time"

type SubmissionStatus string

const (
	StatusQueued     SubmissionStatus = "queued"
	StatusProcessing SubmissionStatus = "processing"
	StatusDone       SubmissionStatus = "done"
	StatusError      SubmissionStatus = "error"
)

// Report status moves forward only: queued -> processing -> done|error, with
// queued -> error for uploads that never reach the analyzer.
var allowedTransitions = map[SubmissionStatus][]SubmissionStatus{
	StatusProcessing: {StatusQueued},
	StatusDone:       {StatusProcessing},
	StatusError:      {StatusQueued, StatusProcessing},
}

func (s SubmissionStatus) Valid() bool {
	switch s {
	case StatusQueued, StatusProcessing, StatusDone, StatusError:
		return true
	default:
		return false
	}
}

func (s SubmissionStatus) IsTerminal() bool {
	return s == StatusDone || s == StatusError
}

// Predecessors lists the statuses a record may hold right before moving to s.
func (s SubmissionStatus) Predecessors() []SubmissionStatus {
	from := allowedTransitions[s]
	out := make([]SubmissionStatus, len(from))
	copy(out, from)
	return out
}

func CanTransition(from, to SubmissionStatus) bool {
	for _, s := range allowedTransitions[to] {
		if s == from {
			return true
		}
	}
	return false
}

type Submission struct {
	ID        string       `json:"id" bson:"_id"`
	UserID    string       `json:"userId" bson:"userId"`
	Title     string       `json:"title" bson:"title"`
	Topics    []string     `json:"topics" bson:"topics"`
	File      *FilePointer `json:"file,omitempty" bson:"file,omitempty"`
	Report    Report       `json:"report" bson:"report"`
	CreatedAt time.Time    `json:"createdAt" bson:"createdAt"`
	UpdatedAt time.Time    `json:"updatedAt" bson:"updatedAt"`
}

// FilePointer is set only after the object store accepted the upload.
type FilePointer struct {
	PublicID     string `json:"publicId" bson:"publicId"`
	URL          string `json:"url" bson:"url"`
	Bytes        int64  `json:"bytes" bson:"bytes"`
	Format       string `json:"format" bson:"format"`
	OriginalName string `json:"originalName,omitempty" bson:"originalName,omitempty"`
	MimeType     string `json:"mimeType,omitempty" bson:"mimeType,omitempty"`
	Pages        int    `json:"pages,omitempty" bson:"pages,omitempty"`
}

// Report is tagged by Status: the result sections are set only when done,
// Error only when error.
type Report struct {
	Status       SubmissionStatus `json:"status" bson:"status"`
	Plagiarism   *Plagiarism      `json:"plagiarism,omitempty" bson:"plagiarism,omitempty"`
	AIGenerated  *AIGenerated     `json:"aiGenerated,omitempty" bson:"aiGenerated,omitempty"`
	Stylometry   *Stylometry      `json:"stylometry,omitempty" bson:"stylometry,omitempty"`
	Heatmap      []HeatmapCell    `json:"heatmap,omitzero" bson:"heatmap"`
	Language     string           `json:"language,omitempty" bson:"language,omitempty"`
	FinalVerdict string           `json:"finalVerdict,omitempty" bson:"finalVerdict,omitempty"`
	Error        string           `json:"error,omitempty" bson:"error,omitempty"`
}

type Plagiarism struct {
	Score             int      `json:"score" bson:"score"`
	Sources           []Source `json:"sources" bson:"sources"`
	RephrasedDetected bool     `json:"rephrasedDetected" bson:"rephrasedDetected"`
}

type Source struct {
	Title   string  `json:"title" bson:"title"`
	URL     string  `json:"url" bson:"url"`
	Overlap float64 `json:"overlap" bson:"overlap"`
}

// AIGenerated.Probability stays a 0..1 fraction while Plagiarism.Score is a
// 0..100 percentage.
type AIGenerated struct {
	Probability       float64  `json:"probability" bson:"probability"`
	Entropy           *float64 `json:"entropy" bson:"entropy"`
	Perplexity        *float64 `json:"perplexity" bson:"perplexity"`
	WatermarkDetected bool     `json:"watermarkDetected" bson:"watermarkDetected"`
}

type Stylometry struct {
	ConsistencyScore *float64 `json:"consistencyScore" bson:"consistencyScore"`
	AnomalyDetected  bool     `json:"anomalyDetected" bson:"anomalyDetected"`
	PreviousMatches  []string `json:"previousMatches" bson:"previousMatches"`
}

type HeatmapCell struct {
	Idx   int     `json:"idx" bson:"idx"`
	Score float64 `json:"score" bson:"score"`
}

func QueuedReport() Report {
	return Report{Status: StatusQueued}
}

func ProcessingReport() Report {
	return Report{Status: StatusProcessing}
}

func ErrorReport(message string) Report {
	return Report{Status: StatusError, Error: message}
}

// SubmissionInput is one inbound upload. Body is consumed once.
type SubmissionInput struct {
	UserID   string
	Title    string
	Topics   []string
	Filename string
	MimeType string
	Size     int64
}

type ListFilter struct {
	UserID string
	Limit  int
}

type SubmissionStats struct {
	UserID             string  `json:"userId,omitempty"`
	Total              int64   `json:"total"`
	Queued             int64   `json:"queued"`
	Processing         int64   `json:"processing"`
	Done               int64   `json:"done"`
	Error              int64   `json:"error"`
	Flagged            int64   `json:"flagged"`
	AvgPlagiarismScore float64 `json:"avgPlagiarismScore"`
	AvgAIProbability   float64 `json:"avgAiProbability"`
}

// FlaggedAIProbability and FlaggedPlagiarismScore mark a done report as flagged
// in stats.
const (
	FlaggedAIProbability   = 0.5
	FlaggedPlagiarismScore = 50
)

// UploadTarget names where the object store should place a file.
type UploadTarget struct {
	Folder      string
	PublicID    string
	ContentType string
}

type StoredObject struct {
	PublicID  string
	SecureURL string
	Bytes     int64
	Format    string
}

type DocumentMeta struct {
	Pages int
}
