// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2024 Intel Corporation

package levelzero

// Unavailable returns an API whose Init always fails with ErrUnavailable.
// It is the default on hosts without a Level Zero runtime; a real binding
// is injected through the API interface by the embedding application.
func Unavailable() API {
	return unavailableAPI{}
}

type unavailableAPI struct{}

func (unavailableAPI) Init() error {
	return ErrUnavailable
}

func (unavailableAPI) Drivers() ([]Driver, error) {
	return nil, ErrUnavailable
}
