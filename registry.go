package graphrt

/*
   Copyright 2018 Bruno Moura <brunotm@gmail.com>

   Licensed under the Apache License, Version 2.0 (the "License");
   you may not use this file except in compliance with the License.
   You may obtain a copy of the License at

       http://www.apache.org/licenses/LICENSE-2.0

   Unless required by applicable law or agreed to in writing, software
   distributed under the License is distributed on an "AS IS" BASIS,
   WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
   See the License for the specific language governing permissions and
   limitations under the License.
*/

import (
	"sync"

	"github.com/sophon-stream/graphrt/xerr"
)

// Constructor builds a fresh Worker for one element type. Registered at
// package init time by every built-in or external collaborator element,
// the same static-registration shape as the teacher's
// ProcessorSupplier/SourceSupplier, generalized to a single process-wide
// map instead of a per-Builder topology list, since spec §4.3 requires
// the registry to be process-wide.
type Constructor func() Worker

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Constructor)
)

// Register adds name to the process-wide ElementFactory. Intended to be
// called from an element package's init(), mirroring REGISTER_WORKER.
// Re-registering the same name panics: this is a programming error
// caught at process start, not a runtime condition.
func Register(name string, ctor Constructor) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, exists := registry[name]; exists {
		panic("graphrt: element type already registered: " + name)
	}
	registry[name] = ctor
}

// Make constructs a fresh Worker for the given registered type name.
func Make(name string) (Worker, *xerr.Error) {
	registryMu.RLock()
	ctor, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, xerr.New(xerr.Unknown, "unregistered element type: "+name)
	}
	return ctor(), nil
}
