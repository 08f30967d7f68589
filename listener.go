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
	"github.com/sophon-stream/graphrt/log"
	"github.com/sophon-stream/graphrt/xerr"
)

// ListenThread is the status/error reporting surface the Engine
// consults during graph bring-up and that Element workers report
// doWork failures to. It plays the narrow role the teacher's
// Context.Error(err, records...) callback plays for a stream: a single
// hook into outer supervision, kept deliberately small per spec §4.8.
type ListenThread interface {
	ReportStatus(code xerr.Code)
}

// LogListener is the default ListenThread: it only logs. Engine callers
// that want programmatic visibility into graph bring-up outcomes should
// supply their own ListenThread implementation instead.
type LogListener struct{}

var listenerLog = log.Component("listener")

func (LogListener) ReportStatus(code xerr.Code) {
	listenerLog.Infow("listener status report", "code", code.String())
}
