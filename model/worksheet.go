package model

// RejectedDocument pairs a rejected document with its reason inside a
// worksheet.
type RejectedDocument struct {
	DocumentID string `json:"document_id"`
	Reason     string `json:"reason"`
}

// WorkSheet is the scratch ledger of what one user has done to a process at
// the current step, before the step transitions. It is created lazily on the
// first sign/reject/upload, and flushed into an audit entry and deleted
// atomically when that user forwards or reverts. It never survives a step
// boundary.
type WorkSheet struct {
	ProcessID         string             `json:"process_id"`
	UserID            string             `json:"user_id"`
	SignedDocuments   []string           `json:"signed_documents,omitempty"`
	RejectedDocuments []RejectedDocument `json:"rejected_documents,omitempty"`
	UploadedDocuments []string           `json:"uploaded_documents,omitempty"`
}

// Empty reports whether the worksheet records no contributions.
func (ws *WorkSheet) Empty() bool {
	return len(ws.SignedDocuments) == 0 &&
		len(ws.RejectedDocuments) == 0 &&
		len(ws.UploadedDocuments) == 0
}

// RejectedIDs returns the ids of the currently rejected documents.
func (ws *WorkSheet) RejectedIDs() []string {
	ids := make([]string, 0, len(ws.RejectedDocuments))
	for _, d := range ws.RejectedDocuments {
		ids = append(ids, d.DocumentID)
	}
	return ids
}

// Flush converts the worksheet into audit documents, one per document id
// with every applicable flag set. Rejections come first, then signatures,
// then uploads, in worksheet order.
func (ws *WorkSheet) Flush() []AuditDocument {
	docs := make([]AuditDocument, 0,
		len(ws.RejectedDocuments)+len(ws.SignedDocuments)+len(ws.UploadedDocuments))
	index := make(map[string]int)
	at := func(id string) int {
		if i, ok := index[id]; ok {
			return i
		}
		docs = append(docs, AuditDocument{DocumentID: id})
		index[id] = len(docs) - 1
		return len(docs) - 1
	}
	for _, d := range ws.RejectedDocuments {
		i := at(d.DocumentID)
		docs[i].IsRejected = true
		docs[i].Reason = d.Reason
	}
	for _, id := range ws.SignedDocuments {
		docs[at(id)].IsSigned = true
	}
	for _, id := range ws.UploadedDocuments {
		docs[at(id)].IsUploaded = true
	}
	return docs
}
