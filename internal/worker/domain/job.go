package domain

import "github.com/cuongbtq/musicgen/internal/api/dto"

// Job is a claimed generation_jobs row
type Job struct {
	Key      string
	Request  []byte // dto.GenerationMessage JSON
	State    string
	JobID    string
	WorkerID string
}

// Acknowledger settles a queue delivery. amqp091.Delivery satisfies it.
type Acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

// JobMessage is one unit of work for the pool.
// Delivery is nil for jobs picked up by the startup resume scan.
type JobMessage struct {
	Key      string
	Message  *dto.GenerationMessage
	Delivery Acknowledger
}
