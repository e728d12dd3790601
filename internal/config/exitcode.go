// Copyright 2021 PingCAP, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// See the License for the specific language governing permissions and
// limitations under the License.

package config

// Process exit codes (spec §6: "0 normal; non-zero on configuration
// validation failure, on MQTT connection refused (authentication), and on
// transport-worker fatal exception"). The spec pins zero-vs-nonzero only;
// the specific nonzero values are this repository's own choice.
const (
	ExitOK             = 0
	ExitConfigInvalid  = 1
	ExitMQTTAuthFailed = 2
	ExitTransportFatal = 3
)
