// Package panel implements the request/response orchestration behind the
// three page panels: upload, document list, and chat.
//
// Each panel owns private state guarded by its own mutex and never holds
// that mutex across a gateway call. Per-panel operations are serialized by
// in-flight guards (per document name for deletions); operations on
// different panels run independently. The only cross-panel coupling is a
// RefreshSignal bumped by the upload panel and watched by the document
// list panel.
package panel
