/*
Copyright 2026 The Cocotabled Authors.

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

package arb

import (
	"reflect"

	"github.com/golang/mock/gomock"
)

// MockTimerStarter is a hand-maintained stand-in for what `mockgen -source
// table.go -destination timerstarter_mock_test.go` would produce for
// TimerStarter; kept by hand here since the toolchain isn't run as part of
// building this repo.
type MockTimerStarter struct {
	ctrl     *gomock.Controller
	recorder *MockTimerStarterRecorder
}

type MockTimerStarterRecorder struct {
	mock *MockTimerStarter
}

func NewMockTimerStarter(ctrl *gomock.Controller) *MockTimerStarter {
	m := &MockTimerStarter{ctrl: ctrl}
	m.recorder = &MockTimerStarterRecorder{m}
	return m
}

func (m *MockTimerStarter) EXPECT() *MockTimerStarterRecorder { return m.recorder }

func (m *MockTimerStarter) Start(durationMS int64, onFire func()) (string, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "Start", durationMS, onFire)
	id, _ := ret[0].(string)
	err, _ := ret[1].(error)
	return id, err
}

func (mr *MockTimerStarterRecorder) Start(durationMS, onFire interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Start", reflect.TypeOf((*MockTimerStarter)(nil).Start), durationMS, onFire)
}

func (m *MockTimerStarter) Cancel(timerID string) {
	m.ctrl.T.Helper()
	m.ctrl.Call(m, "Cancel", timerID)
}

func (mr *MockTimerStarterRecorder) Cancel(timerID interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Cancel", reflect.TypeOf((*MockTimerStarter)(nil).Cancel), timerID)
}
