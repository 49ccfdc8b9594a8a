// Copyright (C) 2025 Dyne.org foundation
// designed, written and maintained by Denis Roio <jaromil@dyne.org>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.
package server

import (
	"fmt"
	"sort"
	"sync"
)

// Endpoints holds the JSON bodies published under /api/{name}.
// It is the only state shared between requests.
type Endpoints struct {
	mu     sync.RWMutex
	bodies map[string][]byte
}

// NewEndpoints returns an empty store.
func NewEndpoints() *Endpoints {
	return &Endpoints{bodies: make(map[string][]byte)}
}

// Publish stores body under name, replacing any previous body.
func (e *Endpoints) Publish(name string, body []byte) error {
	if name == "" {
		return fmt.Errorf("endpoint name is required")
	}
	cp := append([]byte(nil), body...)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.bodies[name] = cp
	return nil
}

// Get returns the body published under name.
func (e *Endpoints) Get(name string) ([]byte, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	body, ok := e.bodies[name]
	return body, ok
}

// Names lists published endpoints in lexical order.
func (e *Endpoints) Names() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	names := make([]string, 0, len(e.bodies))
	for name := range e.bodies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
