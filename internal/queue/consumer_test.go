package queue

import (
	"encoding/base64"
	"encoding/json"
	"testing"
)

func TestJobDataUnmarshalBase64Buffer(t *testing.T) {
	content := []byte("%PDF-1.7 tiny file")
	payload := map[string]interface{}{
		"jobId":      "job-1",
		"userId":     "user-1",
		"filename":   "invoice.pdf",
		"mimeType":   "application/pdf",
		"fileSize":   len(content),
		"fileBuffer": base64.StdEncoding.EncodeToString(content),
		"language":   "es",
		"provider":   "tesseract",
	}
	raw, _ := json.Marshal(payload)

	var job JobData
	if err := json.Unmarshal(raw, &job); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if job.JobID != "job-1" || job.Filename != "invoice.pdf" {
		t.Errorf("fields = %+v", job)
	}
	if string(job.FileBuffer) != string(content) {
		t.Errorf("fileBuffer = %q, want %q", job.FileBuffer, content)
	}
	if job.Language != "es" || job.Provider != "tesseract" {
		t.Errorf("language/provider not decoded: %+v", job)
	}
}

func TestJobDataUnmarshalNodeBufferObject(t *testing.T) {
	raw := []byte(`{
		"jobId": "job-2",
		"userId": "user-1",
		"filename": "scan.png",
		"fileBuffer": {"type": "Buffer", "data": [137, 80, 78, 71]}
	}`)

	var job JobData
	if err := json.Unmarshal(raw, &job); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	want := []byte{0x89, 0x50, 0x4E, 0x47}
	if len(job.FileBuffer) != len(want) {
		t.Fatalf("fileBuffer length = %d, want %d", len(job.FileBuffer), len(want))
	}
	for i := range want {
		if job.FileBuffer[i] != want[i] {
			t.Errorf("fileBuffer[%d] = %#x, want %#x", i, job.FileBuffer[i], want[i])
		}
	}
}

func TestJobDataUnmarshalWithoutBuffer(t *testing.T) {
	raw := []byte(`{"jobId": "job-3", "userId": "user-1", "filename": "doc.pdf", "fileUrl": "http://files.local/doc.pdf"}`)

	var job JobData
	if err := json.Unmarshal(raw, &job); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if job.FileBuffer != nil {
		t.Errorf("fileBuffer should stay nil, got %d bytes", len(job.FileBuffer))
	}
	if job.FileURL != "http://files.local/doc.pdf" {
		t.Errorf("fileUrl = %q", job.FileURL)
	}
}

func TestJobDataUnmarshalRejectsBadBuffer(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"invalid base64", `{"jobId":"j","fileBuffer":"%%% not base64 %%%"}`},
		{"wrong object type", `{"jobId":"j","fileBuffer":{"type":"NotBuffer","data":[1]}}`},
		{"missing data array", `{"jobId":"j","fileBuffer":{"type":"Buffer"}}`},
		{"non numeric byte", `{"jobId":"j","fileBuffer":{"type":"Buffer","data":["x"]}}`},
		{"wrong scalar type", `{"jobId":"j","fileBuffer":42}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var job JobData
			if err := json.Unmarshal([]byte(tc.raw), &job); err == nil {
				t.Errorf("expected error for %s", tc.name)
			}
		})
	}
}
