// SPDX-License-Identifier: Apache-2.0

package server

import (
	logging "github.com/loopholelabs/logging/types"

	"github.com/traceworks/tracebridge/internal/listener"
)

type Options struct {
	UnixPath string
	MaxConn  int
	Handle   HandleFunc
	Logger   logging.Logger
}

func validOptions(options *Options) bool {
	return options != nil && options.UnixPath != "" && options.MaxConn > 0 && options.Handle != nil && options.Logger != nil
}

func (options *Options) listener() *listener.Options {
	return &listener.Options{
		UnixPath: options.UnixPath,
		MaxConn:  options.MaxConn,
		Logger:   options.Logger,
	}
}
