// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2025.10.4
//

package gopsl

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// PosLog appends one position line per result to a text stream
type PosLog struct {
	mu         sync.Mutex
	w          io.Writer
	OnlySolved bool // Write solved epochs only
	lines      int
}

func NewPosLog(w io.Writer) *PosLog {
	return &PosLog{w: w, OnlySolved: true}
}

// OpenPosLog opens fn in append mode
func OpenPosLog(fn string) (*PosLog, io.Closer, error) {
	f, err := os.OpenFile(fn, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("OpenFile() failed, err=%w", err)
	}
	return NewPosLog(f), f, nil
}

func (p *PosLog) WriteResult(r *Result) error {
	if r.Skipped || (p.OnlySolved && !r.OK()) {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, err := fmt.Fprintln(p.w, r.Line()); err != nil {
		return fmt.Errorf("Fprintln() failed, err=%w", err)
	}
	p.lines++
	return nil
}

// Number of lines written
func (p *PosLog) Lines() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lines
}
