package mongo

import (
	"time"

	"github.com/xraph/docket"
	"github.com/xraph/docket/job"
)

// ── Queue document model ──────────────────────────────────────────

type queueModel struct {
	Name     string      `bson:"name"`
	Counter  int64       `bson:"counter"`
	Pending  []int64     `bson:"pending"`
	Started  []int64     `bson:"started"`
	Finished []int64     `bson:"finished"`
	Failed   []int64     `bson:"failed"`
	Locks    []lockModel `bson:"locks"`
	Jobs     []jobModel  `bson:"jobs"`
}

type lockModel struct {
	ID      int64     `bson:"id"`
	Expires time.Time `bson:"expires"`
}

// jobModel is one element of the embedded jobs array. Unset lifecycle
// fields are stored as null.
type jobModel struct {
	ID       int64      `bson:"id"`
	Name     string     `bson:"name"`
	Data     []byte     `bson:"data"`
	Progress *float64   `bson:"progress"`
	Started  *time.Time `bson:"started"`
	Finished *time.Time `bson:"finished"`
	Failed   *time.Time `bson:"failed"`
	Error    *string    `bson:"error"`
	Created  time.Time  `bson:"created"`
	Updated  time.Time  `bson:"updated"`
}

func newQueueModel(name string) *queueModel {
	return &queueModel{
		Name:     name,
		Pending:  []int64{},
		Started:  []int64{},
		Finished: []int64{},
		Failed:   []int64{},
		Locks:    []lockModel{},
		Jobs:     []jobModel{},
	}
}

func toJobModel(j *job.Job) jobModel {
	m := jobModel{
		ID:       j.ID,
		Name:     j.Name,
		Data:     j.Data,
		Progress: j.Progress,
		Started:  j.Started,
		Finished: j.Finished,
		Failed:   j.Failed,
		Created:  j.CreatedAt,
		Updated:  j.UpdatedAt,
	}
	if j.Error != "" {
		m.Error = &j.Error
	}
	return m
}

func fromJobModel(queue string, m *jobModel) *job.Job {
	j := &job.Job{
		Entity: docket.Entity{
			CreatedAt: m.Created,
			UpdatedAt: m.Updated,
		},
		ID:       m.ID,
		Queue:    queue,
		Name:     m.Name,
		Data:     m.Data,
		Progress: m.Progress,
		Started:  m.Started,
		Finished: m.Finished,
		Failed:   m.Failed,
	}
	if m.Error != nil {
		j.Error = *m.Error
	}
	return j
}

func fromQueueModel(m *queueModel) *job.Document {
	d := job.NewDocument(m.Name)
	d.Counter = m.Counter
	d.Pending = append(d.Pending, m.Pending...)
	d.Started = append(d.Started, m.Started...)
	d.Finished = append(d.Finished, m.Finished...)
	d.Failed = append(d.Failed, m.Failed...)
	for _, l := range m.Locks {
		d.Locks = append(d.Locks, job.Lock{ID: l.ID, Expires: l.Expires})
	}
	for i := range m.Jobs {
		j := fromJobModel("", &m.Jobs[i])
		d.Jobs[j.ID] = j
	}
	return d
}
