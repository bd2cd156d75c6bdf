package api

import (
	"net/http"

	"github.com/danielgtaylor/huma/v2"
)

// Register mounts the Control API operations on api.
func Register(api huma.API, h *Handler) {
	huma.Register(api, huma.Operation{
		OperationID: "ping",
		Method:      http.MethodGet,
		Path:        "/api/ping",
		Summary:     "Liveness probe",
		Tags:        []string{"Worker"},
	}, h.Ping)

	huma.Register(api, huma.Operation{
		OperationID: "list-downloads",
		Method:      http.MethodGet,
		Path:        "/api/downloads",
		Summary:     "Snapshot of every tracked job",
		Tags:        []string{"Downloads"},
	}, h.Downloads)

	huma.Register(api, huma.Operation{
		OperationID: "submit-download",
		Method:      http.MethodPost,
		Path:        "/api/download",
		Summary:     "Submit a download",
		Tags:        []string{"Downloads"},
	}, h.Submit)

	huma.Register(api, huma.Operation{
		OperationID: "cancel-download",
		Method:      http.MethodPost,
		Path:        "/api/cancel",
		Summary:     "Cancel an active or queued download",
		Tags:        []string{"Downloads"},
	}, h.Cancel)

	huma.Register(api, huma.Operation{
		OperationID: "ack-download",
		Method:      http.MethodPost,
		Path:        "/api/ack",
		Summary:     "Forget a finished download",
		Tags:        []string{"Downloads"},
	}, h.Ack)

	huma.Register(api, huma.Operation{
		OperationID: "delete-files",
		Method:      http.MethodPost,
		Path:        "/api/delete-files",
		Summary:     "Delete artifacts from disk",
		Tags:        []string{"Files"},
	}, h.DeleteFiles)

	huma.Register(api, huma.Operation{
		OperationID: "disk-usage",
		Method:      http.MethodGet,
		Path:        "/api/disk-usage",
		Summary:     "Total bytes under the artifacts root",
		Tags:        []string{"Files"},
	}, h.DiskUsage)
}
