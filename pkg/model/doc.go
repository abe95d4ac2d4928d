/*
Package model invokes the image generation endpoint.

HTTPClient posts the prompt with a hard 30 second deadline and accepts
either raw image bytes or a JSON body carrying base64 image data. Deadline
expiry maps to ai_service_timeout, every other upstream failure to
model_inference_failed.
*/
package model
