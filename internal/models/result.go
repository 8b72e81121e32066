package models

// VideoSeparator splits a generated file name into display name and suffix.
const VideoSeparator = "##"

// ResultRecord describes one generated video found under the results root.
type ResultRecord struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	DisplayName string  `json:"display_name"`
	URL         string  `json:"url"`
	InputImage  *string `json:"input_image"`
	InputAudio  *string `json:"input_audio"`
	Timestamp   float64 `json:"timestamp"`
}

// JobResult is what a queue job leaves behind. Video holds raw bytes or
// base64 text depending on the worker contract.
type JobResult struct {
	Status string
	Video  []byte
	URL    string
	Error  string
}

const JobStatusSuccess = "success"
