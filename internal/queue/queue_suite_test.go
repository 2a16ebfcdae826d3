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

package queue

import (
	"testing"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	apiconfig "github.com/tunedctl/cocotabled/pkg/apis/config"
)

func TestQueueSuite(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Request Queue Suite")
}

var _ = Describe("Queue priority ordering", func() {
	var q *Queue

	BeforeEach(func() {
		q = New(0, 0)
	})

	It("drains SYSTEM_HIGH ahead of THIRD_PARTY_LOW regardless of push order", func() {
		Expect(q.Push(Event{Kind: KindRemove, Handle: 2}, apiconfig.PriorityThirdPartyLow)).To(Succeed())
		Expect(q.Push(Event{Kind: KindRemove, Handle: 1}, apiconfig.PrioritySystemHigh)).To(Succeed())

		first := q.PopBlocking()
		Expect(first.Handle).To(Equal(Event{Handle: 1}.Handle))

		second := q.PopBlocking()
		Expect(second.Handle).To(Equal(Event{Handle: 2}.Handle))
	})

	It("sorts a SHUTDOWN sentinel below every real priority class", func() {
		Expect(q.Push(Event{Kind: KindRemove, Handle: 9}, apiconfig.PriorityThirdPartyLow)).To(Succeed())
		q.Shutdown()

		first := q.PopBlocking()
		Expect(first.Kind).To(Equal(KindRemove))

		second := q.PopBlocking()
		Expect(second.Kind).To(Equal(KindShutdown))
	})

	It("keeps returning SHUTDOWN once closed", func() {
		q.Shutdown()
		Expect(q.PopBlocking().Kind).To(Equal(KindShutdown))
		Expect(q.PopBlocking().Kind).To(Equal(KindShutdown))
	})
})
