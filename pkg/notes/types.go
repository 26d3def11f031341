package notes

// ContentRequest is the body of POST /note and PUT /note/{id}.
// Content is a pointer so a missing field can be told apart from "".
type ContentRequest struct {
	Content *string `json:"content"`
}

// CreateResponse is returned with 201 Created.
type CreateResponse struct {
	ID int64 `json:"id"`
}

// UpdateResponse is returned with 200 OK after an update.
type UpdateResponse struct {
	ID int64 `json:"id"`
}

// ReadResponse is returned with 200 OK from GET /note/{id}.
type ReadResponse struct {
	Content string `json:"content"`
}

// NotFoundResponse echoes the requested id exactly as it appeared in the path.
type NotFoundResponse struct {
	ID string `json:"id"`
}
