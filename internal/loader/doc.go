// Package loader opens model weight archives and places their tensors on a
// device.
//
// Supported formats, detected by content rather than file extension:
//   - .born: native checkpoints written by the serialization package, with
//     optional nested groups such as a "state_dict" wrapper.
//   - SafeTensors: flat mappings exported by other frameworks. F16 and BF16
//     tensors are widened to float32 on load.
//
// Example:
//
//	weights, err := loader.Open("ckpt_00010.born", tensor.CPU)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	sd, ok := weights.Groups["state_dict"]
package loader
