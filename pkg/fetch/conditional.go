package fetch

import "net/http"

// AddConditionalHeaders adds If-None-Match (ETag) or If-Modified-Since to req
// when v carries a validator. The ETag is preferred.
func AddConditionalHeaders(req *http.Request, v Validators) {
	if req == nil {
		return
	}

	if v.ETag != "" {
		req.Header.Set("If-None-Match", v.ETag)
	} else if v.LastModified != "" {
		req.Header.Set("If-Modified-Since", v.LastModified)
	}
}
