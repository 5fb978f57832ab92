package telemetry

import "sync"

type RecordKind int

const (
	RECORD_BROKEN RecordKind = iota
	RECORD_WARNING
	RECORD_DEBUG
	RECORD_COUNT
)

type Record struct {
	Kind   RecordKind
	Id     string
	Params []any
	Count  int64
}

// Recorder is an API that keeps every report in memory, it is meant for tests
// that need to assert something was (or was not) reported.
type Recorder struct {
	mutex   sync.Mutex
	records []Record
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) push(record Record) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.records = append(r.records, record)
}

func (r *Recorder) ReportBroken(id string, params ...any) {
	r.push(Record{Kind: RECORD_BROKEN, Id: id, Params: params})
}

func (r *Recorder) ReportWarning(id string, params ...any) {
	r.push(Record{Kind: RECORD_WARNING, Id: id, Params: params})
}

func (r *Recorder) ReportDebug(msg string, params ...any) {
	r.push(Record{Kind: RECORD_DEBUG, Id: msg, Params: params})
}

func (r *Recorder) ReportCount(id string, count int64) {
	r.push(Record{Kind: RECORD_COUNT, Id: id, Count: count})
}

// Records returns a copy of the reports of the given kind in the order they were made.
func (r *Recorder) Records(kind RecordKind) []Record {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	var out []Record
	for _, record := range r.records {
		if record.Kind == kind {
			out = append(out, record)
		}
	}
	return out
}
