package domain

import (
	"time"
)

// Item is a recyclable-material category offered by the registry (e.g. Lamps, Batteries).
type Item struct {
	ID       int    `json:"id"`
	Title    string `json:"title"`
	ImageURL string `json:"image_url"`
}

// Point is a collection point as listed by the registry.
type Point struct {
	ID        int     `json:"id"`
	ImageURL  string  `json:"image_url"`
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Coordinate returns the point's location.
func (p Point) Coordinate() Coordinate {
	return Coordinate{Latitude: p.Latitude, Longitude: p.Longitude}
}

// State is a Brazilian federative unit as published by IBGE.
type State struct {
	ID    int    `json:"id"`
	Sigla string `json:"sigla"`
	Nome  string `json:"nome"`
}

// City is a municipality of a state as published by IBGE.
type City struct {
	ID   int    `json:"id"`
	Nome string `json:"nome"`
}

// Region scopes a point query to one city of one state.
type Region struct {
	UF   string `json:"uf"`
	City string `json:"city"`
}

// PointQuery filters the registry's point listing.
type PointQuery struct {
	Region Region
	Items  Selection
}

// ImageFile is an uploaded establishment photo.
type ImageFile struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Data        []byte `json:"-"`
}

// PointRegistration is the validated payload sent to the registry when a point is created.
type PointRegistration struct {
	Name     string     `json:"name"`
	Email    string     `json:"email"`
	Whatsapp string     `json:"whatsapp"`
	UF       string     `json:"uf"`
	City     string     `json:"city"`
	Location Coordinate `json:"location"`
	Items    []int      `json:"items"`
	Image    *ImageFile `json:"image,omitempty"`
}

// SubmissionStatus is the outcome of one submit attempt.
type SubmissionStatus string

const (
	SubmissionSucceeded SubmissionStatus = "succeeded"
	SubmissionFailed    SubmissionStatus = "failed"
	SubmissionDeferred  SubmissionStatus = "deferred"
)

// Submission is the audit record of one registration attempt.
type Submission struct {
	ID         string           `json:"id"`
	SessionID  string           `json:"session_id"`
	Name       string           `json:"name"`
	Email      string           `json:"email"`
	UF         string           `json:"uf"`
	City       string           `json:"city"`
	Location   Coordinate       `json:"location"`
	Items      []int            `json:"items"`
	HasImage   bool             `json:"has_image"`
	Status     SubmissionStatus `json:"status"`
	Error      string           `json:"error,omitempty"`
	WorkflowID string           `json:"workflow_id,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
}

// PointRegistered is published after the registry accepted a new point.
type PointRegistered struct {
	Name       string     `json:"name"`
	UF         string     `json:"uf"`
	City       string     `json:"city"`
	Location   Coordinate `json:"location"`
	Items      []int      `json:"items"`
	OccurredAt time.Time  `json:"occurred_at"`
}

// Region returns the region the new point belongs to.
func (e PointRegistered) Region() Region {
	return Region{UF: e.UF, City: e.City}
}
