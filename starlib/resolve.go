// Copyright 2022 Edward McFarlane. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package starlib

import (
	"fmt"
	"net/url"
	"path"
	"strings"
)

const keyParam = "key"

// ModuleName returns the thread name of the module key in the bucket at
// bktURL. Thread names are blob URLs with the key encoded as a param:
//
//	file:///scripts?key=lib/helpers.star
func ModuleName(bktURL, key string) string {
	sep := "?"
	if strings.Contains(bktURL, "?") {
		sep = "&"
	}
	return bktURL + sep + url.Values{keyParam: {key}}.Encode()
}

func getValues(s string) (string, url.Values, error) {
	vs := strings.SplitN(s, "?", 2)
	s = vs[0]
	if len(vs) == 1 {
		return s, url.Values{}, nil
	}

	vals, err := url.ParseQuery(vs[1])
	if err != nil {
		return "", nil, err
	}
	return s, vals, nil
}

// resolveModuleURL returns the bucket and key of module loaded by the
// thread called name. Modules starting with "./" or "../" are relative to
// the loading module, others to the bucket root.
func resolveModuleURL(name string, module string) (bktURL string, key string, err error) {
	var vals url.Values
	bktURL, vals, err = getValues(name)
	if err != nil {
		return "", "", err
	}
	if !strings.Contains(bktURL, "://") {
		return "", "", fmt.Errorf("cannot load %s: no module bucket for %q", module, name)
	}

	current := vals.Get(keyParam)
	if strings.HasPrefix(module, "./") || strings.HasPrefix(module, "../") {
		key = path.Join(path.Dir(current), module)
	} else {
		key = path.Clean(module)
	}
	if key == ".." || strings.HasPrefix(key, "../") || strings.HasPrefix(key, "/") {
		return "", "", fmt.Errorf("cannot load %s: outside of module bucket", module)
	}

	vals.Del(keyParam)
	if len(vals) > 0 {
		bktURL += "?" + vals.Encode()
	}
	return bktURL, key, nil
}
