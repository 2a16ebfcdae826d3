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

package arena

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireReleaseRoundTrip(t *testing.T) {
	p := NewPool[int](2)
	assert.Equal(t, 2, p.Cap())

	s1, err := p.Acquire()
	require.NoError(t, err)
	*s1.Value() = 42

	s2, err := p.Acquire()
	require.NoError(t, err)
	assert.Equal(t, 2, p.InUse())

	_, err = p.Acquire()
	assert.ErrorIs(t, err, ErrExhausted)

	require.NoError(t, p.Release(s1))
	assert.Equal(t, 1, p.InUse())

	s3, err := p.Acquire()
	require.NoError(t, err)
	assert.Equal(t, 0, *s3.Value())

	require.NoError(t, p.Release(s2))
	require.NoError(t, p.Release(s3))
}

func TestDoubleReleaseRefused(t *testing.T) {
	p := NewPool[string](1)
	s, err := p.Acquire()
	require.NoError(t, err)
	require.NoError(t, p.Release(s))
	assert.ErrorIs(t, p.Release(s), ErrDoubleRelease)
}

func TestConcurrentAcquireRelease(t *testing.T) {
	p := NewPool[int](8)
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, err := p.Acquire()
			if err != nil {
				return
			}
			_ = p.Release(s)
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, p.InUse())
}
