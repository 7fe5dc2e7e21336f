package local

import (
	"github.com/h2non/filetype"

	"github.com/surge-downloader/batchget/internal/engine/state"
	"github.com/surge-downloader/batchget/internal/utils"
)

// journalItem writes the item's current state to the history database.
func (s *Session) journalItem(it *item) {
	if !s.journal {
		return
	}

	s.mu.Lock()
	rec := state.ItemRecord{
		GID:      it.gid,
		BatchID:  s.opts.BatchID,
		URL:      it.uri,
		DestPath: it.destPath,
		Status:   it.state,
		MIME:     it.mime,
	}
	if it.err != nil {
		rec.Error = it.err.Error()
	}
	s.mu.Unlock()

	rec.Filename = it.progress.Name()
	rec.TotalSize = it.progress.TotalSize()
	rec.Downloaded = it.progress.Downloaded.Load()

	if err := state.UpsertItem(rec); err != nil {
		utils.Debug("engine: failed to journal %s: %v", it.gid, err)
	}
}

// sniffMIME identifies a finished file by its magic bytes, falling back to
// what the server declared.
func sniffMIME(path, declared string) string {
	kind, err := filetype.MatchFile(path)
	if err != nil || kind == filetype.Unknown {
		return declared
	}
	return kind.MIME.Value
}
