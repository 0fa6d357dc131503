// Copyright 2023 The Cockroach Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0

package warehouse

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/reyer3/pulso-etl/internal/util/retry"
)

func TestFetchPageBoundary(t *testing.T) {
	tests := []struct {
		name     string
		rows     int
		wantDone bool
	}{
		{"exact page signals done", 2, true},
		{"one extra row signals more", 3, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			require.NoError(t, err)
			defer db.Close()

			rows := sqlmock.NewRows([]string{"id"})
			for i := 0; i < tt.rows; i++ {
				rows.AddRow(i)
			}
			mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM (SELECT 1) AS page_source LIMIT 3 OFFSET 0")).
				WillReturnRows(rows)

			r := &Reader{db: db}
			batch, err := r.fetchPage(context.Background(), "SELECT 1", 2, 0)
			require.NoError(t, err)
			require.Equal(t, tt.wantDone, batch.Done)
			require.Len(t, batch.Rows, 2)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestStreamRetriesTransientErrorThenSucceeds(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	query := regexp.QuoteMeta("SELECT * FROM (SELECT 1) AS page_source LIMIT 11 OFFSET 0")
	mock.ExpectQuery(query).WillReturnError(errors.New("read: connection reset by peer"))
	mock.ExpectQuery(query).WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))

	r := &Reader{
		db:     db,
		limits: Limits{QueryTimeout: 5 * time.Second},
		retry:  retry.Policy{MaxAttempts: 3, Initial: time.Millisecond, Factor: 2},
	}

	out, errc := r.Stream(context.Background(), "SELECT 1", 10)
	batch, ok := <-out
	require.True(t, ok)
	require.Len(t, batch.Rows, 1)
	require.True(t, batch.Done)
	require.Nil(t, <-errc)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStreamDoesNotRetryPermanentErrors(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	query := regexp.QuoteMeta("SELECT * FROM (SELECT 1) AS page_source LIMIT 11 OFFSET 0")
	mock.ExpectQuery(query).WillReturnError(errors.New("syntax error near SELECT"))

	r := &Reader{
		db:     db,
		limits: Limits{QueryTimeout: 5 * time.Second},
		retry:  retry.Policy{MaxAttempts: 3, Initial: time.Millisecond, Factor: 2},
	}

	out, errc := r.Stream(context.Background(), "SELECT 1", 10)
	_, ok := <-out
	require.False(t, ok, "a permanent error closes the batch channel without yielding a page")
	require.Error(t, <-errc)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTestProbeSucceeds(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1")).
		WillReturnRows(sqlmock.NewRows([]string{"one"}).AddRow(1))

	r := &Reader{db: db}
	require.NoError(t, r.Test(context.Background()))
}

func TestTestProbeClassifiesFailureAsTransient(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1")).WillReturnError(errors.New("boom"))

	r := &Reader{db: db}
	err2 := r.Test(context.Background())
	require.Equal(t, ClassTransient, ClassOf(err2))
}

func TestClassifyTaxonomy(t *testing.T) {
	tests := []struct {
		msg  string
		want Class
	}{
		{"permission denied for relation foo", ClassAuth},
		{"access denied for user", ClassAuth},
		{"read: connection reset by peer", ClassTransient},
		{"service unavailable, retry later", ClassTransient},
		{"query timeout exceeded", ClassTimeout},
		{"some other unrecognized driver failure", ClassPermanent},
	}
	for _, tt := range tests {
		got := ClassOf(classify(errors.New(tt.msg)))
		require.Equal(t, tt.want, got, tt.msg)
	}
}

func TestClassifyContextDeadlineExceededIsTimeout(t *testing.T) {
	require.Equal(t, ClassTimeout, ClassOf(classify(context.DeadlineExceeded)))
}

func TestClassifyNilIsNil(t *testing.T) {
	require.Nil(t, classify(nil))
}
