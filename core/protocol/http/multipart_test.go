package http

import "testing"

func TestBoundaryFromContentType(t *testing.T) {
	b, err := BoundaryFromContentType(`multipart/form-data; boundary=----XYZ123`)
	if err != nil {
		t.Fatalf("BoundaryFromContentType: %v", err)
	}
	if b != "----XYZ123" {
		t.Fatalf("unexpected boundary %q", b)
	}
}

func TestBoundaryFromContentTypeMissing(t *testing.T) {
	if _, err := BoundaryFromContentType("multipart/form-data"); err == nil {
		t.Fatal("expected error for missing boundary")
	}
}

func TestNextMultipartTwoParts(t *testing.T) {
	boundary := "BOUNDARY"
	body := "--BOUNDARY\r\n" +
		`Content-Disposition: form-data; name="field1"` + "\r\n\r\n" +
		"value1\r\n" +
		"--BOUNDARY\r\n" +
		`Content-Disposition: form-data; name="file1"; filename="a.txt"` + "\r\n\r\n" +
		"filedata\r\n" +
		"--BOUNDARY--\r\n"

	p1, off1, ok, err := NextMultipart([]byte(body), 0, boundary)
	if err != nil || !ok {
		t.Fatalf("part1: ok=%v err=%v", ok, err)
	}
	if p1.Name != "field1" || string(p1.Data) != "value1" {
		t.Fatalf("unexpected part1 %+v", p1)
	}

	p2, off2, ok, err := NextMultipart([]byte(body), off1, boundary)
	if err != nil || !ok {
		t.Fatalf("part2: ok=%v err=%v", ok, err)
	}
	if p2.Name != "file1" || p2.Filename != "a.txt" || string(p2.Data) != "filedata" {
		t.Fatalf("unexpected part2 %+v", p2)
	}

	_, _, ok, err = NextMultipart([]byte(body), off2, boundary)
	if err != nil {
		t.Fatalf("closing boundary: %v", err)
	}
	if ok {
		t.Fatal("expected closing boundary to report ok=false")
	}
}
