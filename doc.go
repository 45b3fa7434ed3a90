// Copyright © 2024 Meroxa, Inc.
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

/*
Package connector implements the batched delivery of solar farm readings from
a stream into an external store.

# Getting started

A service is assembled from a [Connector], which lists the available sources
and stores. The flat configuration selects one of each and configures the
[Sink] in between:

	c := connector.Connector{
	    NewSpecification: Specification,
	    Sources:          []connector.SourceConnector{generator.Connector()},
	    Stores:           []connector.StoreConnector{postgres.Connector()},
	}
	a, err := c.Assemble(ctx, cfg)
	if err != nil {
	    return err
	}
	p := connector.NewPipeline(a.Source, a.Destination, a.Config.PipelineConfig())
	connector.Serve(ctx, p, connector.ServeConfig{})

Configuration keys are declared with [Parameters]. Every component publishes
its parameters, [Connector.Specification] collects them and [LoadConfig]
builds the flat map from a YAML file, SOLARSINK_* environment variables and
key=value overrides.

The logger travels in the context and is retrieved with [Logger]. Code on the
hot path, which runs for every record, should log at level "trace" or
"debug".

# Sink

The [Sink] wraps a [Store]. Configure opens the store and moves the sink to
[StateReady]. Write takes a [Batch] of records, decodes them into rows with a
[Decoder] and hands all decodable rows to the store in a single call.
Records that cannot be decoded are skipped and counted, they do not fail the
batch.

Failed store calls are classified with [ClassOf], the store's
[ErrorClassifier] and finally [DefaultClassifier]:
  - transient and timeout errors are retried up to the configured number of
    attempts with the configured backoff;
  - when the attempts are exhausted, timeouts result in
    [OutcomeBackpressure] and other transient errors in [OutcomeFatal];
  - overload errors result in [OutcomeBackpressure] right away;
  - all other errors result in [OutcomeFatal] right away and the sink moves
    to [StateFailed].

Delivery is at least once. A batch reported as backpressure or retryable is
redelivered in full, so stores without a unique key on the natural key of a
row may persist it twice.

# Pipeline

A [Pipeline] reads records from a [Source], groups them per topic partition
and delivers one batch at a time to a [Destination]. Positions are
acknowledged only after their batch was written. Batches rejected with
backpressure are held and redelivered after [WriteResult].RetryAfter, the
partition is paused meanwhile if the source implements [Pauser]. A source
that cannot pause is no longer read once the held partition has another
full batch buffered.

# Middleware

Destinations and sources are wrapped in middleware configured through the
core parameters, see [DestinationWithMiddleware] and [SourceWithMiddleware].
The default destination middleware limits the write rate, the default source
middleware records when a record was read.

# Stores

Stores live in the store/... packages, sources in source/.... Every store
implementation should pass [AcceptanceTest] and can be measured with
[BenchmarkStore].
*/
package connector
