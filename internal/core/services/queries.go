// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package services contains the business logic behind the HTTP API. This file
// holds the BigQuery SQL used by the generation store. The table name is
// injected with fmt.Sprintf; values are always passed as named parameters.
package services

const (
	// QryFindGenerationById looks up a single generation record.
	//
	// Placeholders:
	// - `%s`: The fully qualified name of the generation table.
	// Parameters:
	// - `@id`: The generation id.
	QryFindGenerationById = "SELECT * FROM `%s` WHERE id = @id ORDER BY create_date DESC LIMIT 1"

	// QryRecentGenerations lists the newest generation records first.
	//
	// Placeholders:
	// - `%s`: The fully qualified name of the generation table.
	// Parameters:
	// - `@limit`: The maximum number of rows.
	QryRecentGenerations = "SELECT * FROM `%s` ORDER BY create_date DESC LIMIT @limit"
)
