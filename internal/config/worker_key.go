package config

type WorkerKeyStruct struct {
	PersistAnswerLogQueue     string
	PersistProctorEventsQueue string
}

var WorkerKey = &WorkerKeyStruct{
	PersistAnswerLogQueue:     "persist_answer_log_queue",
	PersistProctorEventsQueue: "persist_proctor_events_queue",
}
