package page

import "github.com/intellect4all/numstore/pkgerr"

var (
	ErrBadPageSize  = pkgerr.New(pkgerr.Corrupt, "page: buffer is not exactly Size bytes")
	ErrWrongType    = pkgerr.New(pkgerr.Corrupt, "page: unexpected page type")
	ErrBodyOverflow = pkgerr.New(pkgerr.InvalidArgument, "page: body does not fit in page")
	ErrFull         = pkgerr.New(pkgerr.InvalidArgument, "page: no room for another entry")
	ErrNotFound     = pkgerr.New(pkgerr.Corrupt, "page: entry not found")
)
