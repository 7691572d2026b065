package domain

import "time"

// Verdict is the outcome of the plant-image plausibility check.
type Verdict struct {
	IsPlant bool
	Message string
}

// Scan represents one uploaded photo and its simulated diagnosis.
type Scan struct {
	ID          string
	UserID      string
	ImageURL    string
	ImageSHA1   string
	IsPlant     bool
	CheckNote   string
	DiseaseID   string
	DiseaseName string
	Confidence  float64
	CreatedAt   time.Time
}

// Disease is one entry of the fixed diagnosis catalog.
type Disease struct {
	ID          string
	Name        string
	Crop        string
	Description string
	Treatment   string
	Severity    string
}
